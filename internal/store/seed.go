package store

import (
	"context"
	"database/sql"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Collection names created by Seed. LikedCollectionName doubles as the source
// of the liked annotation on company listings.
const (
	MyListCollectionName = "My List"
	LikedCollectionName  = "Liked Companies List"
	IgnoreCollectionName = "Companies to Ignore List"
)

const (
	seedSettingName = "seeded"
	seedLikedCount  = 10
	seedIgnoreCount = 50
)

var (
	seedAdjectives = []string{
		"golden", "silent", "rapid", "northern", "crimson", "lucid", "atomic",
		"coastal", "hidden", "solar", "iron", "velvet", "amber", "polar",
		"radiant", "quiet", "bold", "emerald", "drifting", "stellar",
	}
	seedNouns = []string{
		"harbor", "summit", "forge", "meadow", "circuit", "anchor", "canyon",
		"beacon", "orchard", "lattice", "reactor", "compass", "prairie",
		"quarry", "signal", "terrace", "glacier", "foundry", "relay", "grove",
	}
)

// Seed populates an empty database with generated companies and the three
// standard collections: "My List" holds every company, the liked list the
// first 10 and the ignore list the first 50. It is a no-op once the seeded
// marker is present. Returns true when seeding actually ran.
func (s *SQLiteStore) Seed(ctx context.Context, companies int) (bool, error) {
	var marker string
	err := s.db.QueryRowContext(ctx, `
		SELECT setting_name FROM settings WHERE setting_name = ?
	`, seedSettingName).Scan(&marker)
	if err == nil {
		return false, nil
	}
	if err != sql.ErrNoRows {
		return false, fmt.Errorf("read seed marker: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin seed: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	rng := rand.New(rand.NewSource(now.UnixNano()))

	insertCompany, err := tx.PrepareContext(ctx, `
		INSERT INTO companies (company_name, created_at) VALUES (?, ?)
	`)
	if err != nil {
		return false, fmt.Errorf("prepare company insert: %w", err)
	}
	defer insertCompany.Close()

	companyIDs := make([]int64, 0, companies)
	for range companies {
		res, err := insertCompany.ExecContext(ctx, randomCompanyName(rng), now)
		if err != nil {
			return false, fmt.Errorf("seed company: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return false, fmt.Errorf("seed company id: %w", err)
		}
		companyIDs = append(companyIDs, id)
	}

	memberships := []struct {
		name  string
		count int
	}{
		{MyListCollectionName, len(companyIDs)},
		{LikedCollectionName, min(seedLikedCount, len(companyIDs))},
		{IgnoreCollectionName, min(seedIgnoreCount, len(companyIDs))},
	}
	for _, m := range memberships {
		collectionID := uuid.NewString()
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO company_collections (id, collection_name, created_at) VALUES (?, ?, ?)
		`, collectionID, m.name, now); err != nil {
			return false, fmt.Errorf("seed collection %q: %w", m.name, err)
		}
		for _, companyID := range companyIDs[:m.count] {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO company_collection_associations (company_id, collection_id, created_at)
				VALUES (?, ?, ?)
			`, companyID, collectionID, now); err != nil {
				return false, fmt.Errorf("seed association: %w", err)
			}
		}
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO settings (setting_name) VALUES (?)
	`, seedSettingName); err != nil {
		return false, fmt.Errorf("write seed marker: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit seed: %w", err)
	}
	return true, nil
}

// randomCompanyName builds a two-word title-case name, e.g. "Golden Harbor".
// Names are not required to be unique.
func randomCompanyName(rng *rand.Rand) string {
	adjective := seedAdjectives[rng.Intn(len(seedAdjectives))]
	noun := seedNouns[rng.Intn(len(seedNouns))]
	return titleCase(adjective) + " " + titleCase(noun)
}

func titleCase(word string) string {
	if word == "" {
		return word
	}
	return strings.ToUpper(word[:1]) + word[1:]
}
