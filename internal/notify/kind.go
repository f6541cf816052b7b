package notify

import "fmt"

type Category string

const (
	CategoryBus   Category = "bus"
	CategoryAlert Category = "alert"
)

// Kind is the proximity condition a bus notification was raised for.
type Kind int

const (
	OnTheWay Kind = iota + 1
	Near
	ApproachingDestination
)

func (k Kind) String() string {
	switch k {
	case OnTheWay:
		return "on_way"
	case Near:
		return "near"
	case ApproachingDestination:
		return "dest"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

func (k Kind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

// Key suppresses repeats of the same kind of notification for one vehicle.
type Key struct {
	VehicleID int
	Kind      Kind
}

type KeySet map[Key]struct{}

func (s KeySet) Has(k Key) bool {
	_, ok := s[k]
	return ok
}

func (s KeySet) Add(k Key)    { s[k] = struct{}{} }
func (s KeySet) Remove(k Key) { delete(s, k) }

func (s KeySet) Clear() {
	for k := range s {
		delete(s, k)
	}
}
