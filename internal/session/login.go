package session

import (
	"fmt"

	ncerr "chatd/internal/errors"
	"chatd/util"
)

// login prompts until the client claims a free, well-formed name or
// runs out of attempts.  Both a malformed name and a taken name cost
// one attempt.
func (s *Session) login() error {
	s.send("Welcome to chatd!")
	for left := s.opts.LoginAttempts; left > 0; {
		s.sendf("Enter a name (letters only, at most %d):", s.opts.MaxNameLen)
		line, err := s.readLine()
		if err != nil {
			return err
		}

		name := trimSpaces(line)
		reason := s.checkName(name)
		if reason == "" {
			s.mu.Lock()
			s.name = name
			s.mu.Unlock()
			if s.dir.Register(name, s) {
				s.registered = true
				break
			}
			s.mu.Lock()
			s.name = ""
			s.mu.Unlock()
			reason = fmt.Sprintf("The name %s is already in use.", name)
		}

		left--
		s.metrics.LoginFailed()
		s.sendf("%s %s", reason, attemptsLeft(left))
	}

	if !s.registered {
		s.metrics.RecordError(ncerr.ErrLoginExhausted.Error())
		s.logger.Info("login attempts exhausted")
		s.send("Too many failed login attempts. Goodbye.")
		return ncerr.ErrLoginExhausted
	}

	s.logger = s.logger.WithFields(util.Fields{"user": s.name})
	s.setState(Active)
	s.metrics.LoginSucceeded()
	s.logger.Info("logged in")
	s.sendf("Hello, %s! Join a room to start chatting.", s.name)
	s.sendHelp()
	return nil
}

// checkName returns a user-facing complaint, or "" if name is valid.
func (s *Session) checkName(name string) string {
	switch {
	case name == "":
		return "A name is required."
	case len(name) > s.opts.MaxNameLen:
		return fmt.Sprintf("Names may be at most %d letters.", s.opts.MaxNameLen)
	case !isLetters(name):
		return "Names may only contain letters."
	}
	return ""
}

func attemptsLeft(n int) string {
	if n == 1 {
		return "1 attempt left."
	}
	return fmt.Sprintf("%d attempts left.", n)
}

func isLetters(s string) bool {
	for i := 0; i < len(s); i++ {
		if !isLetter(s[i]) {
			return false
		}
	}
	return true
}

func isLetter(b byte) bool { return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z') }

func isDigit(b byte) bool { return b >= '0' && b <= '9' }

// trimSpaces strips the spaces scrub leaves around a line.
func trimSpaces(s string) string {
	start, end := 0, len(s)
	for start < end && s[start] == ' ' {
		start++
	}
	for end > start && s[end-1] == ' ' {
		end--
	}
	return s[start:end]
}
