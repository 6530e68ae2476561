// Package storage is a thin keyed JSON layer over buntdb. Objects implement
// Storable and are stored under their own key.
package storage

import (
	"encoding/json"

	log "github.com/sirupsen/logrus"
	"github.com/tidwall/buntdb"
)

type Storable interface {
	Key() string
}

type DB struct {
	*buntdb.DB
}

func NewBunt(path string) *DB {
	db, err := buntdb.Open(path)
	if err != nil {
		log.Fatalf("[Bunt] could not open %s: %v", path, err)
	}
	return &DB{DB: db}
}

func (db *DB) Get(s Storable) error {
	return db.View(func(tx *buntdb.Tx) error {
		v, err := tx.Get(s.Key())
		if err != nil {
			return err
		}
		return json.Unmarshal([]byte(v), s)
	})
}

func (db *DB) Set(s Storable) error {
	b, err := json.Marshal(s)
	if err != nil {
		return err
	}
	return db.Update(func(tx *buntdb.Tx) error {
		_, _, err := tx.Set(s.Key(), string(b), nil)
		return err
	})
}

func (db *DB) Delete(s Storable) error {
	return db.Update(func(tx *buntdb.Tx) error {
		_, err := tx.Delete(s.Key())
		return err
	})
}
