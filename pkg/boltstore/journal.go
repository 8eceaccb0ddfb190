package boltstore

import (
	"fmt"
	"sort"
	"time"

	bbolt "go.etcd.io/bbolt"
	"github.com/samber/lo"
)

// Record is one finished game in the journal.
type Record struct {
	Seq     uint64
	Session string
	Game    string
	Outcome string
	Players []string
	Winners []string
	Losers  []string
	By      string
	Started time.Time
	Ended   time.Time
}

// Duration is how long the game ran.
func (r Record) Duration() time.Duration {
	return r.Ended.Sub(r.Started)
}

// Stats is a player's running tally.
type Stats struct {
	Name   string
	Played int
	Wins   int
	Losses int
	Draws  int
}

// AppendRecord writes rec to the journal and updates every player's tally
// in a single transaction. It returns the assigned sequence number.
func (s *Store) AppendRecord(rec Record) (uint64, error) {
	err := s.bolt.Update(func(tx *bbolt.Tx) error {
		j := tx.Bucket(bucketJournal)
		seq, err := j.NextSequence()
		if err != nil {
			return err
		}
		rec.Seq = seq
		data, err := encode(rec)
		if err != nil {
			return fmt.Errorf("encode record: %w", err)
		}
		if err := j.Put(seqToKey(seq), data); err != nil {
			return err
		}

		st := tx.Bucket(bucketStats)
		for _, name := range rec.Players {
			var tally Stats
			if v := st.Get(nameKey(name)); v != nil {
				if err := decode(v, &tally); err != nil {
					return fmt.Errorf("decode stats %s: %w", name, err)
				}
			}
			tally.Name = name
			tally.Played++
			switch {
			case lo.Contains(rec.Winners, name):
				tally.Wins++
			case lo.Contains(rec.Losers, name):
				tally.Losses++
			case rec.Outcome == "draw":
				tally.Draws++
			}
			data, err := encode(tally)
			if err != nil {
				return fmt.Errorf("encode stats %s: %w", name, err)
			}
			if err := st.Put(nameKey(name), data); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("boltstore: append record: %w", err)
	}
	return rec.Seq, nil
}

// History returns up to limit records involving player, newest first.
// An empty player matches every record.
func (s *Store) History(player string, limit int) ([]Record, error) {
	var out []Record
	want := string(nameKey(player))
	err := s.bolt.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket(bucketJournal).Cursor()
		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			if limit > 0 && len(out) >= limit {
				break
			}
			var rec Record
			if err := decode(v, &rec); err != nil {
				return fmt.Errorf("decode record %d: %w", keyToSeq(k), err)
			}
			if want != "" && !lo.ContainsBy(rec.Players, func(n string) bool { return string(nameKey(n)) == want }) {
				continue
			}
			out = append(out, rec)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("boltstore: history: %w", err)
	}
	return out, nil
}

// Stats returns the tally for one player. Unknown players get a zero tally.
func (s *Store) Stats(name string) (Stats, error) {
	tally := Stats{Name: name}
	err := s.bolt.View(func(tx *bbolt.Tx) error {
		if v := tx.Bucket(bucketStats).Get(nameKey(name)); v != nil {
			return decode(v, &tally)
		}
		return nil
	})
	if err != nil {
		return Stats{}, fmt.Errorf("boltstore: stats %s: %w", name, err)
	}
	return tally, nil
}

// Leaderboard returns the top players by wins, then fewest losses.
func (s *Store) Leaderboard(limit int) ([]Stats, error) {
	var all []Stats
	err := s.bolt.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketStats).ForEach(func(_, v []byte) error {
			var tally Stats
			if err := decode(v, &tally); err != nil {
				return err
			}
			all = append(all, tally)
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("boltstore: leaderboard: %w", err)
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].Wins != all[j].Wins {
			return all[i].Wins > all[j].Wins
		}
		if all[i].Losses != all[j].Losses {
			return all[i].Losses < all[j].Losses
		}
		return all[i].Name < all[j].Name
	})
	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}
