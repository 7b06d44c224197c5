// Package chat holds the shared state of a chat broker: the Directory of
// connected users and rooms, and the formatting rules for everything
// fanned out between sessions.
//
// Every Directory operation runs inside one critical section.  Delivery
// to members is a non-blocking enqueue performed under the lock, which
// keeps posts from a single sender in order for every recipient while
// never letting a slow consumer stall the Directory.
package chat

import (
	"sort"
	"strings"
	"sync"

	"github.com/bradenaw/juniper/xslices"

	ncerr "chatd/internal/errors"
	"chatd/internal/metrics"
	"chatd/util"
)

// Member is the handle the Directory keeps for a logged-in session.
type Member interface {
	// Name is the display name the member registered with.
	Name() string
	// Room is the room the member currently occupies ("" for none).
	Room() string
	// SetRoom records the member's room.  Only the Directory calls it.
	SetRoom(room string)
	// Deliver queues one line for the member without blocking.  It
	// returns false when the line was dropped.
	Deliver(line string) bool
	// Kick asks the member's session to close, interrupting any
	// blocked read.
	Kick(reason string)
}

// RoomInfo is one line of a room listing.
type RoomInfo struct {
	Name  string
	Count int
}

type user struct {
	name   string
	member Member
}

type room struct {
	name    string
	members []string // display names, join order
}

// Directory is the registry of connected users and occupied rooms.
// A room exists exactly as long as it has at least one member.
type Directory struct {
	mu    sync.Mutex
	users map[string]*user // key: upper-cased name
	rooms map[string]*room // key: upper-cased name

	logger  *util.Logger
	metrics *metrics.Collector
}

// NewDirectory creates an empty Directory.  logger and m may be nil.
func NewDirectory(logger *util.Logger, m *metrics.Collector) *Directory {
	if logger == nil {
		logger = util.NewLogger(0)
	}
	return &Directory{
		users:   make(map[string]*user),
		rooms:   make(map[string]*room),
		logger:  logger,
		metrics: m,
	}
}

func key(name string) string { return strings.ToUpper(name) }

// ── Users ────────────────────────────────────────────────────────────

// Register claims name for m.  It returns false, changing nothing, if a
// case-insensitively equal name is already registered.
func (d *Directory) Register(name string, m Member) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	k := key(name)
	if _, taken := d.users[k]; taken {
		return false
	}
	d.users[k] = &user{name: name, member: m}
	return true
}

// Unregister releases name and its room membership.  Remaining room
// members are told the user left.  Unknown names are ignored.
func (d *Directory) Unregister(name string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	u, ok := d.users[key(name)]
	if !ok {
		return
	}
	delete(d.users, key(name))
	if r := d.removeFromRoom(u.name, u.member.Room()); r != nil {
		d.fanout(r, LeaveNotice(u.name))
	}
	u.member.SetRoom("")
}

// ResolveUser returns the registered spelling of name, or "".
func (d *Directory) ResolveUser(name string) string {
	d.mu.Lock()
	defer d.mu.Unlock()
	if u, ok := d.users[key(name)]; ok {
		return u.name
	}
	return ""
}

// Count returns the number of registered users.
func (d *Directory) Count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.users)
}

// ── Rooms ────────────────────────────────────────────────────────────

// ResolveRoom returns the canonical spelling of an existing room, or "".
func (d *Directory) ResolveRoom(name string) string {
	d.mu.Lock()
	defer d.mu.Unlock()
	if r, ok := d.rooms[key(name)]; ok {
		return r.name
	}
	return ""
}

// ListRooms returns every room with its occupant count, sorted by name.
func (d *Directory) ListRooms() []RoomInfo {
	d.mu.Lock()
	defer d.mu.Unlock()

	out := make([]RoomInfo, 0, len(d.rooms))
	for _, r := range d.rooms {
		out = append(out, RoomInfo{Name: r.name, Count: len(r.members)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// ListMembers returns the members of room in join order.  An empty
// room name lists every connected user, sorted.  ok is false when the
// named room does not exist.
func (d *Directory) ListMembers(roomName string) (names []string, ok bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if roomName == "" {
		names = xslices.Map(mapValues(d.users), func(u *user) string { return u.name })
		sort.Strings(names)
		return names, true
	}
	r, ok := d.rooms[key(roomName)]
	if !ok {
		return nil, false
	}
	return append([]string(nil), r.members...), true
}

// SwitchRoom moves m out of from and into to, either of which may be
// blank.  The destination is matched case-insensitively and created on
// first use.  Everyone in the destination, m included, is told about the
// join; m gets a private notice for the room it left.  m's recorded room
// is updated last.  The canonical destination name is returned.
func (d *Directory) SwitchRoom(m Member, from, to string) string {
	d.mu.Lock()
	defer d.mu.Unlock()

	name := m.Name()
	if to != "" {
		if r, ok := d.rooms[key(to)]; ok && contains(r.members, name) {
			return r.name
		}
	}

	if left := d.rooms[key(from)]; from != "" && left != nil && contains(left.members, name) {
		m.Deliver(LeftRoom(left.name))
		if r := d.removeFromRoom(name, left.name); r != nil {
			d.fanout(r, LeaveNotice(name))
		}
	}

	dest := ""
	if to != "" {
		r, ok := d.rooms[key(to)]
		if !ok {
			r = &room{name: to}
			d.rooms[key(to)] = r
			d.logger.Verbose("room %q created", to)
		}
		r.members = append(r.members, name)
		d.fanout(r, JoinNotice(name))
		dest = r.name
	}
	m.SetRoom(dest)
	return dest
}

// PostToRoom sends message from a user to every member of roomName,
// sender included.  A missing room is reported to the sender and
// returned as ErrNoSuchRoom.
func (d *Directory) PostToRoom(message, roomName, from string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	r, ok := d.rooms[key(roomName)]
	if !ok {
		if u, tracked := d.users[key(from)]; tracked {
			u.member.Deliver(NoSuchRoom(roomName))
		}
		return ncerr.ErrNoSuchRoom
	}
	if from == "" {
		d.fanout(r, SystemPost(message))
	} else {
		d.fanout(r, RoomPost(r.name, from, message))
	}
	d.metrics.RoomPost()
	return nil
}

// Whisper delivers a private message.  The recipient must exist; a
// missing recipient is returned as ErrUnknownUser.  An untracked sender
// (an announcer identity) produces no echo.
func (d *Directory) Whisper(message, from, to string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	dst, ok := d.users[key(to)]
	if !ok {
		return ncerr.ErrUnknownUser
	}
	src, tracked := d.users[key(from)]
	sender := from
	if tracked {
		sender = src.name
	}
	d.deliver(dst, WhisperTo(sender, message))
	if tracked {
		d.deliver(src, WhisperEcho(dst.name, message))
	}
	d.metrics.Whisper()
	return nil
}

// Broadcast sends a system notice to every connected user.
func (d *Directory) Broadcast(text string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, u := range d.users {
		d.deliver(u, SystemPost(text))
	}
}

// Shutdown kicks every registered member.  The members unregister
// themselves as their sessions tear down.
func (d *Directory) Shutdown(reason string) {
	d.mu.Lock()
	members := xslices.Map(mapValues(d.users), func(u *user) Member { return u.member })
	d.mu.Unlock()

	for _, m := range members {
		m.Kick(reason)
	}
}

// ── helpers (callers hold d.mu) ──────────────────────────────────────

// removeFromRoom drops name from roomName, deleting the room when it
// empties.  It returns the room if members remain.
func (d *Directory) removeFromRoom(name, roomName string) *room {
	if roomName == "" {
		return nil
	}
	r, ok := d.rooms[key(roomName)]
	if !ok {
		return nil
	}
	r.members = remove(r.members, name)
	if len(r.members) == 0 {
		delete(d.rooms, key(roomName))
		d.logger.Verbose("room %q removed", r.name)
		return nil
	}
	return r
}

func (d *Directory) fanout(r *room, line string) {
	for _, name := range r.members {
		u, ok := d.users[key(name)]
		if !ok {
			d.logger.Error("room %q lists %q but no such user is registered", r.name, name)
			continue
		}
		d.deliver(u, line)
	}
}

func (d *Directory) deliver(u *user, line string) {
	if !u.member.Deliver(line) {
		d.metrics.Dropped()
		d.logger.WithFields(util.Fields{"user": u.name}).Verbose("delivery dropped")
	}
}

func contains(names []string, name string) bool {
	for _, n := range names {
		if n == name {
			return true
		}
	}
	return false
}

func remove(names []string, name string) []string {
	for i, n := range names {
		if n == name {
			return append(names[:i], names[i+1:]...)
		}
	}
	return names
}

func mapValues(m map[string]*user) []*user {
	out := make([]*user, 0, len(m))
	for _, u := range m {
		out = append(out, u)
	}
	return out
}
