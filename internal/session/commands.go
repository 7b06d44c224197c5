package session

import (
	"fmt"
	"strings"

	ncerr "chatd/internal/errors"
)

type command int

const (
	cmdQuit command = iota + 1
	cmdRooms
	cmdJoin
	cmdLeave
	cmdWho
	cmdMsg
	cmdHelp
)

// commands maps each case-sensitive trigger to its command.
var commands = map[string]command{
	"/quit":  cmdQuit,
	"/rooms": cmdRooms,
	"/join":  cmdJoin,
	"/leave": cmdLeave,
	"/who":   cmdWho,
	"/msg":   cmdMsg,
	"/help":  cmdHelp,
}

var helpLines = []string{
	"Commands:",
	"  /rooms              list active rooms",
	"  /join <room>        join or create a room",
	"  /leave              leave the current room",
	"  /who [room]         list users in a room, or everyone",
	"  /msg <user> <text>  whisper to a user",
	"  /help               show this list",
	"  /quit               disconnect",
}

// loop serves the Active state until something ends the session.
func (s *Session) loop() error {
	for {
		line, err := s.readLine()
		if err != nil {
			return err
		}
		if err := s.dispatch(line); err != nil {
			return err
		}
	}
}

// dispatch routes one line to a command or the current room.
func (s *Session) dispatch(line string) error {
	line = trimSpaces(line)
	trigger, arg := splitCommand(line)

	if cmd, ok := commands[trigger]; ok {
		return s.run(cmd, arg)
	}
	if strings.HasPrefix(trigger, "/") {
		s.sendf("Unknown command: %s", trigger)
		s.sendHelp()
		return nil
	}

	room := s.Room()
	if room == "" {
		s.send("You are not in a room. Use /join <room> first.")
		s.sendHelp()
		return nil
	}
	if s.throttled() {
		return nil
	}
	if err := s.dir.PostToRoom(line, room, s.Name()); err != nil {
		// The sender was already told; this only happens if the room
		// vanished under a concurrent switch.
		s.logger.Verbose("post to %s: %v", room, err)
	}
	return nil
}

// throttled reports whether flood control drops the next message.
// Only traffic that reaches other users counts against the limit.
func (s *Session) throttled() bool {
	if s.limiter == nil || s.limiter.Allow() {
		return false
	}
	s.send("You are sending messages too fast; message dropped.")
	return true
}

func (s *Session) run(cmd command, arg string) error {
	s.logger.Debug("command %s %q", cmd, arg)
	switch cmd {
	case cmdQuit:
		return s.quit()
	case cmdRooms:
		s.listRooms()
	case cmdJoin:
		s.join(arg)
	case cmdLeave:
		s.leave()
	case cmdWho:
		s.who(arg)
	case cmdMsg:
		s.whisper(arg)
	case cmdHelp:
		s.sendHelp()
	}
	return nil
}

func (s *Session) quit() error {
	name := s.Name()
	s.dir.Unregister(name)
	s.registered = false
	s.sendf("Goodbye, %s!", name)
	s.logger.Info("quit")
	return ncerr.ErrQuit
}

func (s *Session) listRooms() {
	rooms := s.dir.ListRooms()
	if len(rooms) == 0 {
		s.send("There are no active rooms. Create one with /join <room>.")
		return
	}
	current := s.Room()
	s.send("Active rooms:")
	for _, r := range rooms {
		mark := ""
		if r.Name == current {
			mark = " (you are here)"
		}
		s.sendf("  * %s (%d)%s", r.Name, r.Count, mark)
	}
}

func (s *Session) join(arg string) {
	current := s.Room()
	switch {
	case arg == "":
		s.send("Usage: /join <room>")
		return
	case current != "" && strings.EqualFold(arg, current):
		s.sendf("You are already in room %s.", current)
		return
	case !isRoomName(arg):
		s.send("Room names may only contain letters and digits.")
		return
	case len(arg) > s.opts.MaxRoomLen:
		s.sendf("Room names may be at most %d characters.", s.opts.MaxRoomLen)
		return
	}

	dest := s.dir.SwitchRoom(s, current, arg)
	s.logger.Verbose("joined %s", dest)
	s.who(dest)
}

func (s *Session) leave() {
	current := s.Room()
	if current == "" {
		s.send("You are not in a room.")
		return
	}
	s.dir.SwitchRoom(s, current, "")
	s.logger.Verbose("left %s", current)
}

func (s *Session) who(arg string) {
	me := s.Name()
	if arg == "" {
		names, _ := s.dir.ListMembers("")
		s.sendf("Connected users (%d):", len(names))
		s.sendNames(names, me)
		return
	}

	room := s.dir.ResolveRoom(arg)
	names, ok := s.dir.ListMembers(room)
	if room == "" || !ok {
		s.sendf("Room '%s' does not exist.", arg)
		return
	}
	s.sendf("Users in room %s (%d):", room, len(names))
	s.sendNames(names, me)
}

func (s *Session) sendNames(names []string, me string) {
	for _, n := range names {
		if n == me {
			s.sendf("  * %s (you)", n)
		} else {
			s.sendf("  * %s", n)
		}
	}
}

func (s *Session) whisper(arg string) {
	target, text := splitWhisper(arg)
	me := s.Name()
	switch {
	case target == "":
		s.send("Usage: /msg <user> <message>")
		return
	case strings.EqualFold(target, me):
		s.send("You cannot whisper to yourself.")
		return
	}
	to := s.dir.ResolveUser(target)
	if to == "" {
		s.sendf("User '%s' is not connected.", target)
		return
	}
	if text == "" {
		s.send("Usage: /msg <user> <message>")
		return
	}
	if s.throttled() {
		return
	}

	if err := s.dir.Whisper(text, me, to); err != nil {
		// to resolved a moment ago; it disconnected in between.
		s.metrics.RecordError(err.Error())
		s.logger.Error("whisper to %s failed after resolving: %v", to, err)
		s.sendf("User '%s' is no longer connected.", to)
	}
}

func (s *Session) sendHelp() {
	for _, l := range helpLines {
		s.send(l)
	}
}

// splitCommand splits line into its first space-separated token and
// the trimmed remainder.
func splitCommand(line string) (trigger, arg string) {
	if i := strings.IndexByte(line, ' '); i >= 0 {
		return line[:i], trimSpaces(line[i+1:])
	}
	return line, ""
}

// splitWhisper takes the leading run of letters as the recipient and
// the trimmed rest as the message.
func splitWhisper(arg string) (target, text string) {
	i := 0
	for i < len(arg) && isLetter(arg[i]) {
		i++
	}
	return arg[:i], trimSpaces(arg[i:])
}

func isRoomName(name string) bool {
	for i := 0; i < len(name); i++ {
		if !isLetter(name[i]) && !isDigit(name[i]) {
			return false
		}
	}
	return true
}

// String renders the trigger for logs.
func (c command) String() string {
	for trigger, cmd := range commands {
		if cmd == c {
			return trigger
		}
	}
	return fmt.Sprintf("command(%d)", int(c))
}
