package session

import (
	"io"
	"strings"
	"testing"
	"testing/iotest"

	ncerr "chatd/internal/errors"
)

func readAll(t *testing.T, lr *lineReader) []string {
	t.Helper()
	var out []string
	for {
		line, err := lr.next()
		if err == io.EOF {
			return out
		}
		if err != nil {
			t.Fatalf("next: %v", err)
		}
		out = append(out, line)
	}
}

func TestLineReader_Terminators(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{"lf", "hello\nworld\n", []string{"hello", "world"}},
		{"crlf", "hello\r\n", []string{"hello", ""}},
		{"nul", "a\x00b\n", []string{"a", "b"}},
		{"cr only", "one\rtwo\r", []string{"one", "two"}},
		{"unterminated tail dropped at eof", "done\npartial", []string{"done"}},
		{"control chars", "tab\there\x1bbell\x07\n", []string{"tab here bell "}},
		{"high bytes", "caf\xc3\xa9\n", []string{"caf  "}},
		{"del", "x\x7fy\n", []string{"x y"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lr := newLineReader(strings.NewReader(tt.input), 64, "test")
			defer lr.release()
			got := readAll(t, lr)
			if len(got) != len(tt.want) {
				t.Fatalf("got %q, want %q", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("[%d] = %q, want %q", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestLineReader_SplitReads(t *testing.T) {
	lr := newLineReader(iotest.OneByteReader(strings.NewReader("/join lobby\nhi\n")), 64, "test")
	defer lr.release()

	got := readAll(t, lr)
	if len(got) != 2 || got[0] != "/join lobby" || got[1] != "hi" {
		t.Errorf("got %q", got)
	}
}

func TestLineReader_TooLong(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"no terminator", strings.Repeat("x", 65)},
		{"terminated late", strings.Repeat("x", 70) + "\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lr := newLineReader(strings.NewReader(tt.input), 64, "10.0.0.7:5555")
			defer lr.release()

			_, err := lr.next()
			var pe *ncerr.ProtocolError
			if !ncerr.As(err, &pe) {
				t.Fatalf("err = %v, want ProtocolError", err)
			}
			if !ncerr.Is(err, ncerr.ErrLineTooLong) {
				t.Error("should unwrap to ErrLineTooLong")
			}
			if pe.Addr != "10.0.0.7:5555" {
				t.Errorf("Addr = %q", pe.Addr)
			}
		})
	}
}

func TestLineReader_ExactlyMax(t *testing.T) {
	line := strings.Repeat("x", 64)
	lr := newLineReader(strings.NewReader(line+"\n"), 64, "test")
	defer lr.release()

	got, err := lr.next()
	if err != nil || got != line {
		t.Errorf("next = %q, %v", got, err)
	}
}

func TestLineReader_ArmAndTouch(t *testing.T) {
	lr := newLineReader(iotest.OneByteReader(strings.NewReader("ab\n")), 64, "test")
	defer lr.release()

	arms, touched := 0, 0
	lr.arm = func() error { arms++; return nil }
	lr.touch = func(n int) { touched += n }

	if _, err := lr.next(); err != nil {
		t.Fatal(err)
	}
	if arms != 3 || touched != 3 {
		t.Errorf("arms = %d, touched = %d, want 3/3", arms, touched)
	}
}

func TestLineReader_ArmError(t *testing.T) {
	lr := newLineReader(strings.NewReader("never read\n"), 64, "test")
	defer lr.release()
	lr.arm = func() error { return ncerr.ErrSessionClosed }

	if _, err := lr.next(); !ncerr.Is(err, ncerr.ErrSessionClosed) {
		t.Errorf("err = %v, want ErrSessionClosed", err)
	}
}

func TestSplitCommand(t *testing.T) {
	tests := []struct {
		line, trigger, arg string
	}{
		{"/join lobby", "/join", "lobby"},
		{"/who", "/who", ""},
		{"/msg  alice   hi there ", "/msg", "alice   hi there"},
		{"hello world", "hello", "world"},
	}
	for _, tt := range tests {
		trigger, arg := splitCommand(tt.line)
		if trigger != tt.trigger || arg != tt.arg {
			t.Errorf("splitCommand(%q) = (%q, %q), want (%q, %q)", tt.line, trigger, arg, tt.trigger, tt.arg)
		}
	}
}

func TestSplitWhisper(t *testing.T) {
	tests := []struct {
		arg, target, text string
	}{
		{"alice Hello", "alice", "Hello"},
		{"alice", "alice", ""},
		{"alice,  hi", "alice", ",  hi"},
		{"42 hi", "", "42 hi"},
		{"", "", ""},
	}
	for _, tt := range tests {
		target, text := splitWhisper(tt.arg)
		if target != tt.target || text != tt.text {
			t.Errorf("splitWhisper(%q) = (%q, %q), want (%q, %q)", tt.arg, target, text, tt.target, tt.text)
		}
	}
}
