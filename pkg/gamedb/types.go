package gamedb

import (
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

// DBRef is the fundamental object reference type.
type DBRef int

const (
	Nothing   DBRef = -1
	Ambiguous DBRef = -2
)

// ObjectType represents the type of a world object.
type ObjectType int

const (
	TypeRoom   ObjectType = 0
	TypePlayer ObjectType = 3
)

func (t ObjectType) String() string {
	switch t {
	case TypeRoom:
		return "ROOM"
	case TypePlayer:
		return "PLAYER"
	default:
		return "UNKNOWN"
	}
}

// Flag constants
const (
	FlagWizard = 0x00000010
	FlagDark   = 0x00000040
	FlagRobot  = 0x08000000
)

// Object is a room or player in the world.
type Object struct {
	DBRef    DBRef
	Name     string
	Type     ObjectType
	Location DBRef
	Flags    int
	Created  time.Time
}

// HasFlag checks if a flag bit is set.
func (o *Object) HasFlag(flag int) bool {
	return o.Flags&flag != 0
}

// IsRobot reports whether the object is driven by the server rather than a connection.
func (o *Object) IsRobot() bool {
	return o.HasFlag(FlagRobot)
}

// Database holds the in-memory world. All methods are safe for concurrent use.
type Database struct {
	mu      sync.RWMutex
	objects map[DBRef]*Object
	next    DBRef
}

// NewDatabase creates an empty Database.
func NewDatabase() *Database {
	return &Database{objects: make(map[DBRef]*Object)}
}

// Create adds a new object and returns a copy of it.
func (db *Database) Create(name string, typ ObjectType, loc DBRef, flags int) Object {
	db.mu.Lock()
	defer db.mu.Unlock()
	obj := &Object{
		DBRef:    db.next,
		Name:     name,
		Type:     typ,
		Location: loc,
		Flags:    flags,
		Created:  time.Now(),
	}
	db.objects[obj.DBRef] = obj
	db.next++
	return *obj
}

// Put stores obj under its own ref, replacing any existing object.
// Used when loading from persistent storage.
func (db *Database) Put(obj Object) {
	db.mu.Lock()
	defer db.mu.Unlock()
	o := obj
	db.objects[o.DBRef] = &o
	if o.DBRef >= db.next {
		db.next = o.DBRef + 1
	}
}

// Len returns the number of objects.
func (db *Database) Len() int {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return len(db.objects)
}

// Get returns a copy of the object with the given ref.
func (db *Database) Get(ref DBRef) (Object, bool) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	obj, ok := db.objects[ref]
	if !ok {
		return Object{}, false
	}
	return *obj, true
}

// Name returns the object's name, or "#<ref>" if unknown.
func (db *Database) Name(ref DBRef) string {
	if obj, ok := db.Get(ref); ok {
		return obj.Name
	}
	return "#" + strconv.Itoa(int(ref))
}

// Move relocates an object.
func (db *Database) Move(ref, loc DBRef) bool {
	db.mu.Lock()
	defer db.mu.Unlock()
	obj, ok := db.objects[ref]
	if !ok {
		return false
	}
	obj.Location = loc
	return true
}

// Contents lists the refs located in a room, in ref order.
func (db *Database) Contents(room DBRef) []DBRef {
	db.mu.RLock()
	defer db.mu.RUnlock()
	var refs []DBRef
	for ref, obj := range db.objects {
		if obj.Location == room && obj.Type != TypeRoom {
			refs = append(refs, ref)
		}
	}
	sort.Slice(refs, func(i, j int) bool { return refs[i] < refs[j] })
	return refs
}

// Players lists every player object in ref order.
func (db *Database) Players() []Object {
	db.mu.RLock()
	defer db.mu.RUnlock()
	var out []Object
	for _, obj := range db.objects {
		if obj.Type == TypePlayer {
			out = append(out, *obj)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DBRef < out[j].DBRef })
	return out
}

// LookupPlayer finds a player by exact name (case-insensitive) anywhere in the world.
// Returns Nothing if not found.
func (db *Database) LookupPlayer(name string) DBRef {
	name = strings.TrimSpace(name)
	if strings.HasPrefix(name, "*") {
		name = name[1:]
	}
	db.mu.RLock()
	defer db.mu.RUnlock()
	for ref, obj := range db.objects {
		if obj.Type == TypePlayer && strings.EqualFold(obj.Name, name) {
			return ref
		}
	}
	return Nothing
}

// MatchPlayer resolves a name against the players in room. An exact
// match wins; otherwise a unique prefix match is accepted. Returns
// Ambiguous when several players share the prefix, Nothing when none match.
// A leading '*' searches the whole world by exact name instead.
func (db *Database) MatchPlayer(room DBRef, name string) DBRef {
	name = strings.TrimSpace(name)
	if name == "" {
		return Nothing
	}
	if strings.HasPrefix(name, "*") {
		return db.LookupPlayer(name)
	}
	if strings.HasPrefix(name, "#") {
		n, err := strconv.Atoi(name[1:])
		if err != nil {
			return Nothing
		}
		if obj, found := db.Get(DBRef(n)); found && obj.Type == TypePlayer && obj.Location == room {
			return obj.DBRef
		}
		return Nothing
	}

	db.mu.RLock()
	defer db.mu.RUnlock()
	lower := strings.ToLower(name)
	match := Nothing
	for ref, obj := range db.objects {
		if obj.Type != TypePlayer || obj.Location != room {
			continue
		}
		objLower := strings.ToLower(obj.Name)
		if objLower == lower {
			return ref
		}
		if strings.HasPrefix(objLower, lower) {
			if match != Nothing {
				match = Ambiguous
			} else {
				match = ref
			}
		}
	}
	return match
}
