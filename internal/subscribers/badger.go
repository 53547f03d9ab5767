package subscribers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	"students-timetable/internal/domain"
	applog "students-timetable/internal/log"
)

const prefixSubscriber = "sub:"

// ErrNotFound - пользователь не зарегистрирован.
var ErrNotFound = errors.New("subscriber not found")

// BadgerDirectory хранит подписчиков в badger. Ключ - sub:<user_id>, значение - JSON.
type BadgerDirectory struct {
	db  *badger.DB
	log *slog.Logger
}

// Open открывает базу в каталоге path. Пустой path открывает базу в памяти.
func Open(path string, logger *slog.Logger) (*BadgerDirectory, error) {
	if logger == nil {
		logger = slog.Default()
	}

	opts := badger.DefaultOptions(path).
		WithLogger(&applog.BadgerAdapter{Logger: logger}).
		WithLoggingLevel(badger.WARNING)
	if path == "" {
		opts = opts.WithInMemory(true)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open subscriber db: %w", err)
	}
	return &BadgerDirectory{db: db, log: logger}, nil
}

// Close закрывает базу.
func (d *BadgerDirectory) Close() error {
	return d.db.Close()
}

func subscriberKey(userID int64) []byte {
	return []byte(prefixSubscriber + strconv.FormatInt(userID, 10))
}

// ListSubscribers возвращает подписчиков, подходящих под фильтр, упорядоченных по UserID.
func (d *BadgerDirectory) ListSubscribers(ctx context.Context, filter domain.SubscriberFilter) ([]domain.Subscriber, error) {
	var out []domain.Subscriber

	err := d.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(prefixSubscriber)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}

			var sub domain.Subscriber
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &sub)
			})
			if err != nil {
				d.log.Warn("skipping corrupt subscriber record",
					slog.String("key", string(it.Item().KeyCopy(nil))), "error", err)
				continue
			}
			if filter.Match(sub) {
				out = append(out, sub)
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list subscribers: %w", err)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

// Get возвращает подписчика или ErrNotFound.
func (d *BadgerDirectory) Get(_ context.Context, userID int64) (domain.Subscriber, error) {
	var sub domain.Subscriber
	err := d.db.View(func(txn *badger.Txn) error {
		var err error
		sub, err = getSubscriber(txn, userID)
		return err
	})
	return sub, err
}

// Upsert сохраняет подписчика целиком.
func (d *BadgerDirectory) Upsert(_ context.Context, sub domain.Subscriber) error {
	return d.db.Update(func(txn *badger.Txn) error {
		return putSubscriber(txn, sub)
	})
}

// SetGroups заменяет список групп пользователя.
func (d *BadgerDirectory) SetGroups(_ context.Context, userID int64, groups []string) error {
	return d.update(userID, func(sub *domain.Subscriber) {
		sub.Groups = append([]string(nil), groups...)
	})
}

// SetNotifications включает или выключает уведомления.
func (d *BadgerDirectory) SetNotifications(_ context.Context, userID int64, enabled bool) error {
	return d.update(userID, func(sub *domain.Subscriber) {
		sub.NotificationsEnabled = enabled
	})
}

// Count возвращает число зарегистрированных пользователей.
func (d *BadgerDirectory) Count() (int, error) {
	count := 0
	err := d.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(prefixSubscriber)
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			count++
		}
		return nil
	})
	return count, err
}

func (d *BadgerDirectory) update(userID int64, fn func(*domain.Subscriber)) error {
	return d.db.Update(func(txn *badger.Txn) error {
		sub, err := getSubscriber(txn, userID)
		if err != nil {
			return err
		}
		fn(&sub)
		return putSubscriber(txn, sub)
	})
}

func getSubscriber(txn *badger.Txn, userID int64) (domain.Subscriber, error) {
	var sub domain.Subscriber

	item, err := txn.Get(subscriberKey(userID))
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return sub, ErrNotFound
		}
		return sub, fmt.Errorf("failed to retrieve subscriber: %w", err)
	}

	val, err := item.ValueCopy(nil)
	if err != nil {
		return sub, fmt.Errorf("failed to read subscriber value: %w", err)
	}
	if err := json.Unmarshal(val, &sub); err != nil {
		return sub, fmt.Errorf("failed to unmarshal subscriber: %w", err)
	}
	return sub, nil
}

func putSubscriber(txn *badger.Txn, sub domain.Subscriber) error {
	data, err := json.Marshal(sub)
	if err != nil {
		return fmt.Errorf("failed to marshal subscriber: %w", err)
	}
	return txn.Set(subscriberKey(sub.UserID), data)
}
