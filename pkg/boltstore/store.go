package boltstore

import (
	"errors"
	"fmt"
	"io"
	"log"
	"time"

	bbolt "go.etcd.io/bbolt"
	"golang.org/x/crypto/bcrypt"

	"github.com/crystal-mush/mushgames/pkg/gamedb"
)

var (
	ErrAccountExists = errors.New("boltstore: account already exists")
	ErrNoAccount     = errors.New("boltstore: no such account")
	ErrBadPassword   = errors.New("boltstore: wrong password")
)

// Account is a player's login record.
type Account struct {
	Name      string
	Ref       gamedb.DBRef
	Hash      []byte
	Created   time.Time
	LastLogin time.Time
}

// Store wraps a bbolt database and an in-memory world cache for ACID persistence.
type Store struct {
	bolt  *bbolt.DB
	cache *gamedb.Database
}

// Open opens or creates a bbolt database file and ensures all buckets exist.
func Open(path string) (*Store, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("boltstore: open %s: %w", path, err)
	}

	// Ensure all buckets exist.
	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range [][]byte{bucketMeta, bucketObjects, bucketPlayers, bucketAccounts, bucketJournal, bucketStats} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return tx.Bucket(bucketMeta).Put(keySchema, seqToKey(schemaVersion))
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("boltstore: create buckets: %w", err)
	}

	return &Store{
		bolt:  db,
		cache: gamedb.NewDatabase(),
	}, nil
}

// Close closes the underlying bbolt database.
func (s *Store) Close() error {
	if s.bolt != nil {
		return s.bolt.Close()
	}
	return nil
}

// DB returns the in-memory world cache.
func (s *Store) DB() *gamedb.Database {
	return s.cache
}

// Path returns the filesystem path of the underlying bbolt database.
func (s *Store) Path() string {
	if s.bolt != nil {
		return s.bolt.Path()
	}
	return ""
}

// PutObject persists a single object (write-through).
func (s *Store) PutObject(obj gamedb.Object) error {
	data, err := encode(obj)
	if err != nil {
		return fmt.Errorf("boltstore: encode object #%d: %w", obj.DBRef, err)
	}
	return s.bolt.Update(func(tx *bbolt.Tx) error {
		if obj.Type == gamedb.TypePlayer {
			if err := tx.Bucket(bucketPlayers).Put(nameKey(obj.Name), refToKey(obj.DBRef)); err != nil {
				return err
			}
		}
		return tx.Bucket(bucketObjects).Put(refToKey(obj.DBRef), data)
	})
}

// LoadAll reads every stored object into the world cache and returns the
// lobby room, creating and persisting one if the database is new.
func (s *Store) LoadAll(lobbyName string) (gamedb.DBRef, error) {
	count := 0
	lobby := gamedb.Nothing
	err := s.bolt.View(func(tx *bbolt.Tx) error {
		if v := tx.Bucket(bucketMeta).Get(keyLobby); v != nil {
			lobby = keyToRef(v)
		}
		return tx.Bucket(bucketObjects).ForEach(func(k, v []byte) error {
			var obj gamedb.Object
			if err := decode(v, &obj); err != nil {
				return fmt.Errorf("decode #%d: %w", keyToRef(k), err)
			}
			s.cache.Put(obj)
			count++
			return nil
		})
	})
	if err != nil {
		return gamedb.Nothing, fmt.Errorf("boltstore: load: %w", err)
	}

	if _, ok := s.cache.Get(lobby); !ok {
		room := s.cache.Create(lobbyName, gamedb.TypeRoom, gamedb.Nothing, 0)
		if err := s.PutObject(room); err != nil {
			return gamedb.Nothing, err
		}
		err := s.bolt.Update(func(tx *bbolt.Tx) error {
			return tx.Bucket(bucketMeta).Put(keyLobby, refToKey(room.DBRef))
		})
		if err != nil {
			return gamedb.Nothing, fmt.Errorf("boltstore: save lobby: %w", err)
		}
		lobby = room.DBRef
		log.Printf("boltstore: created lobby %q as #%d", lobbyName, lobby)
	}
	log.Printf("boltstore: loaded %d objects from %s", count, s.Path())
	return lobby, nil
}

// CreateAccount stores a bcrypt hash of password for the player obj and
// persists the player object itself.
func (s *Store) CreateAccount(obj gamedb.Object, password string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("boltstore: hash password: %w", err)
	}
	acct := Account{Name: obj.Name, Ref: obj.DBRef, Hash: hash, Created: time.Now()}
	data, err := encode(acct)
	if err != nil {
		return fmt.Errorf("boltstore: encode account %s: %w", obj.Name, err)
	}
	err = s.bolt.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketAccounts)
		if b.Get(nameKey(obj.Name)) != nil {
			return ErrAccountExists
		}
		return b.Put(nameKey(obj.Name), data)
	})
	if err != nil {
		return err
	}
	return s.PutObject(obj)
}

// Account returns the stored account for name.
func (s *Store) Account(name string) (Account, error) {
	var acct Account
	err := s.bolt.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket(bucketAccounts).Get(nameKey(name))
		if v == nil {
			return ErrNoAccount
		}
		return decode(v, &acct)
	})
	return acct, err
}

// Authenticate checks a password and stamps the login time.
func (s *Store) Authenticate(name, password string) (Account, error) {
	acct, err := s.Account(name)
	if err != nil {
		return Account{}, err
	}
	if bcrypt.CompareHashAndPassword(acct.Hash, []byte(password)) != nil {
		return Account{}, ErrBadPassword
	}
	acct.LastLogin = time.Now()
	data, err := encode(acct)
	if err != nil {
		return Account{}, fmt.Errorf("boltstore: encode account %s: %w", name, err)
	}
	err = s.bolt.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketAccounts).Put(nameKey(name), data)
	})
	if err != nil {
		log.Printf("boltstore: WARNING: could not record login for %s: %v", name, err)
	}
	return acct, nil
}

// PlayerRef looks up a player's ref in the persistent name index.
func (s *Store) PlayerRef(name string) (gamedb.DBRef, bool) {
	ref := gamedb.Nothing
	_ = s.bolt.View(func(tx *bbolt.Tx) error {
		if v := tx.Bucket(bucketPlayers).Get(nameKey(name)); v != nil {
			ref = keyToRef(v)
		}
		return nil
	})
	return ref, ref != gamedb.Nothing
}

// Snapshot writes a consistent copy of the database file to w while the
// store stays open. It returns the number of journal records in the copy.
func (s *Store) Snapshot(w io.Writer) (int, error) {
	var records int
	err := s.bolt.View(func(tx *bbolt.Tx) error {
		records = tx.Bucket(bucketJournal).Stats().KeyN
		_, err := tx.WriteTo(w)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("boltstore: snapshot: %w", err)
	}
	return records, nil
}
