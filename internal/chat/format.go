package chat

import "fmt"

// Wire formats for everything the broker says to clients.  Lines carry
// no terminator here; the session writer appends "\n".

// RoomPost formats a message from a user to a room.
func RoomPost(room, user, text string) string {
	return fmt.Sprintf("[%s] %s: %s", room, user, text)
}

// SystemPost formats an announcement with no originating user.
func SystemPost(text string) string {
	return "* " + text
}

// WhisperTo formats a private message as the recipient sees it.
func WhisperTo(sender, text string) string {
	return sender + " whispers: " + text
}

// WhisperEcho formats the sender's copy of a private message.
func WhisperEcho(recipient, text string) string {
	return "You whisper to " + recipient + ": " + text
}

// JoinNotice is posted to a room when name enters it.
func JoinNotice(name string) string {
	return SystemPost("new user joined chat: " + name)
}

// LeaveNotice is posted to the remaining members when name leaves.
func LeaveNotice(name string) string {
	return SystemPost("user left chat: " + name)
}

// LeftRoom is the private notice a leaver receives.
func LeftRoom(room string) string {
	return "You left room " + room + "."
}

// NoSuchRoom is the error a sender sees when posting to a missing room.
func NoSuchRoom(room string) string {
	return fmt.Sprintf("Room '%s' does not exist.", room)
}
