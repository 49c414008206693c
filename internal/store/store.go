package store

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/shelflife/shelflife/internal/domain"
	bolt "go.etcd.io/bbolt"
)

// Bucket names
var (
	bucketCategories = []byte("categories")
	bucketFoods      = []byte("foods")
)

// storedCategory is the on-disk representation of a Category.
type storedCategory struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// storedFood is the on-disk representation of a Food. Instants persist as
// epoch millis.
type storedFood struct {
	ID                  int64  `json:"id"`
	CategoryID          int64  `json:"categoryId"`
	Name                string `json:"name"`
	ExpiryDate          int64  `json:"expiryDate"`
	RemainingPercentage int    `json:"remainingPercentage"`
	CreatedAt           int64  `json:"createdAt"`
}

func toStoredFood(f domain.Food) storedFood {
	return storedFood{
		ID:                  f.ID,
		CategoryID:          f.CategoryID,
		Name:                f.Name,
		ExpiryDate:          f.ExpiryDate.UnixMilli(),
		RemainingPercentage: f.RemainingPercentage,
		CreatedAt:           f.CreatedAt.UnixMilli(),
	}
}

func fromStoredFood(s storedFood) domain.Food {
	return domain.Food{
		ID:                  s.ID,
		CategoryID:          s.CategoryID,
		Name:                s.Name,
		ExpiryDate:          time.UnixMilli(s.ExpiryDate),
		RemainingPercentage: s.RemainingPercentage,
		CreatedAt:           time.UnixMilli(s.CreatedAt),
	}
}

// RecordStore implements domain.RecordStore using BoltDB. One handle is
// constructed at startup and shared; bbolt serializes writers internally.
type RecordStore struct {
	db     *bolt.DB
	logger *slog.Logger

	foods      *Stream[[]domain.FoodWithCategory]
	categories *Stream[[]domain.Category]
}

// NewRecordStore opens (or creates) the store under dataDir.
func NewRecordStore(dataDir string, logger *slog.Logger) (*RecordStore, error) {
	if logger == nil {
		logger = slog.Default()
	}

	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, err
	}

	dbPath := filepath.Join(dataDir, "shelflife.db")
	db, err := bolt.Open(dbPath, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt db: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{bucketCategories, bucketFoods} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	s := &RecordStore{
		db:         db,
		logger:     logger,
		foods:      NewStream[[]domain.FoodWithCategory](),
		categories: NewStream[[]domain.Category](),
	}

	// Prime both streams so subscribers see the persisted state immediately.
	s.publishSnapshots()
	return s, nil
}

func (s *RecordStore) Close() error {
	return s.db.Close()
}

func itob(v int64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, uint64(v))
	return b
}

// === Categories ===

func (s *RecordStore) InsertCategory(ctx context.Context, c *domain.Category) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := s.db.Update(func(tx *bolt.Tx) error {
		return insertCategoryTx(tx, c)
	})
	if err != nil {
		return err
	}
	s.publishSnapshots()
	return nil
}

// InsertCategories inserts the given categories in one transaction. Used by
// first-run seeding, which supplies explicit sequential IDs.
func (s *RecordStore) InsertCategories(ctx context.Context, cs []domain.Category) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := s.db.Update(func(tx *bolt.Tx) error {
		for i := range cs {
			if err := insertCategoryTx(tx, &cs[i]); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.publishSnapshots()
	return nil
}

func insertCategoryTx(tx *bolt.Tx, c *domain.Category) error {
	b := tx.Bucket(bucketCategories)
	if c.ID == 0 {
		id, err := b.NextSequence()
		if err != nil {
			return err
		}
		c.ID = int64(id)
	} else if uint64(c.ID) > b.Sequence() {
		// Explicit IDs (seeding) must not collide with later generated ones.
		if err := b.SetSequence(uint64(c.ID)); err != nil {
			return err
		}
	}
	data, err := json.Marshal(storedCategory{ID: c.ID, Name: c.Name})
	if err != nil {
		return err
	}
	return b.Put(itob(c.ID), data)
}

func (s *RecordStore) Categories(ctx context.Context) ([]domain.Category, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out []domain.Category
	err := s.db.View(func(tx *bolt.Tx) error {
		var err error
		out, err = readCategoriesTx(tx)
		return err
	})
	return out, err
}

func readCategoriesTx(tx *bolt.Tx) ([]domain.Category, error) {
	var out []domain.Category
	b := tx.Bucket(bucketCategories)
	err := b.ForEach(func(_, v []byte) error {
		var sc storedCategory
		if err := json.Unmarshal(v, &sc); err != nil {
			return err
		}
		out = append(out, domain.Category{ID: sc.ID, Name: sc.Name})
		return nil
	})
	return out, err
}

func (s *RecordStore) CategoryCount(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	var count int
	err := s.db.View(func(tx *bolt.Tx) error {
		count = tx.Bucket(bucketCategories).Stats().KeyN
		return nil
	})
	return count, err
}

// DeleteCategory removes the category and cascades to every food referencing it.
func (s *RecordStore) DeleteCategory(ctx context.Context, id int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := s.db.Update(func(tx *bolt.Tx) error {
		cb := tx.Bucket(bucketCategories)
		if cb.Get(itob(id)) == nil {
			return domain.ErrCategoryNotFound
		}
		if err := cb.Delete(itob(id)); err != nil {
			return err
		}

		fb := tx.Bucket(bucketFoods)
		c := fb.Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var sf storedFood
			if err := json.Unmarshal(v, &sf); err != nil {
				return err
			}
			if sf.CategoryID == id {
				if err := c.Delete(); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.publishSnapshots()
	return nil
}

// === Foods ===

func (s *RecordStore) InsertFood(ctx context.Context, f *domain.Food) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := s.db.Update(func(tx *bolt.Tx) error {
		if tx.Bucket(bucketCategories).Get(itob(f.CategoryID)) == nil {
			return domain.ErrCategoryNotFound
		}
		b := tx.Bucket(bucketFoods)
		if f.ID == 0 {
			id, err := b.NextSequence()
			if err != nil {
				return err
			}
			f.ID = int64(id)
		} else if uint64(f.ID) > b.Sequence() {
			// Explicit IDs must not collide with later generated ones.
			if err := b.SetSequence(uint64(f.ID)); err != nil {
				return err
			}
		}
		data, err := json.Marshal(toStoredFood(*f))
		if err != nil {
			return err
		}
		return b.Put(itob(f.ID), data)
	})
	if err != nil {
		return err
	}
	s.publishSnapshots()
	return nil
}

func (s *RecordStore) UpdateFood(ctx context.Context, f domain.Food) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketFoods)
		if b.Get(itob(f.ID)) == nil {
			return domain.ErrFoodNotFound
		}
		if tx.Bucket(bucketCategories).Get(itob(f.CategoryID)) == nil {
			return domain.ErrCategoryNotFound
		}
		data, err := json.Marshal(toStoredFood(f))
		if err != nil {
			return err
		}
		return b.Put(itob(f.ID), data)
	})
	if err != nil {
		return err
	}
	s.publishSnapshots()
	return nil
}

func (s *RecordStore) DeleteFood(ctx context.Context, f domain.Food) error {
	return s.DeleteFoodByID(ctx, f.ID)
}

func (s *RecordStore) DeleteFoodByID(ctx context.Context, id int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketFoods)
		if b.Get(itob(id)) == nil {
			return domain.ErrFoodNotFound
		}
		return b.Delete(itob(id))
	})
	if err != nil {
		return err
	}
	s.publishSnapshots()
	return nil
}

func (s *RecordStore) FoodByID(ctx context.Context, id int64) (*domain.Food, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out *domain.Food
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketFoods).Get(itob(id))
		if v == nil {
			return domain.ErrFoodNotFound
		}
		var sf storedFood
		if err := json.Unmarshal(v, &sf); err != nil {
			return err
		}
		f := fromStoredFood(sf)
		out = &f
		return nil
	})
	return out, err
}

// FoodsWithCategory returns the join projection, ascending by expiry date.
func (s *RecordStore) FoodsWithCategory(ctx context.Context) ([]domain.FoodWithCategory, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out []domain.FoodWithCategory
	err := s.db.View(func(tx *bolt.Tx) error {
		var err error
		out, err = readFoodsWithCategoryTx(tx)
		return err
	})
	return out, err
}

func readFoodsWithCategoryTx(tx *bolt.Tx) ([]domain.FoodWithCategory, error) {
	cats := make(map[int64]domain.Category)
	list, err := readCategoriesTx(tx)
	if err != nil {
		return nil, err
	}
	for _, c := range list {
		cats[c.ID] = c
	}

	var out []domain.FoodWithCategory
	b := tx.Bucket(bucketFoods)
	err = b.ForEach(func(_, v []byte) error {
		var sf storedFood
		if err := json.Unmarshal(v, &sf); err != nil {
			return err
		}
		cat, ok := cats[sf.CategoryID]
		if !ok {
			// Referential integrity is enforced at write time; a dangling
			// row would mean a partially applied cascade.
			return domain.ErrCategoryNotFound
		}
		out = append(out, domain.FoodWithCategory{Food: fromStoredFood(sf), Category: cat})
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i].Food, out[j].Food
		if !a.ExpiryDate.Equal(b.ExpiryDate) {
			return a.ExpiryDate.Before(b.ExpiryDate)
		}
		return a.ID < b.ID
	})
	return out, nil
}

// === Live query streams ===

func (s *RecordStore) SubscribeFoods() domain.FoodSubscription {
	return s.foods.Subscribe()
}

func (s *RecordStore) SubscribeCategories() domain.CategorySubscription {
	return s.categories.Subscribe()
}

// publishSnapshots recomputes both join snapshots and pushes them to all
// subscribers. Called after every successful mutation.
func (s *RecordStore) publishSnapshots() {
	err := s.db.View(func(tx *bolt.Tx) error {
		foods, err := readFoodsWithCategoryTx(tx)
		if err != nil {
			return err
		}
		cats, err := readCategoriesTx(tx)
		if err != nil {
			return err
		}
		s.foods.Publish(foods)
		s.categories.Publish(cats)
		return nil
	})
	if err != nil {
		s.logger.Error("failed to publish store snapshot", "error", err)
	}
}
