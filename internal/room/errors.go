package room

import "errors"

// Command errors. The messages are sent to clients verbatim.
var (
	ErrInvalidName     = errors.New("Invalid name.")
	ErrGameStarted     = errors.New("Game already started.")
	ErrNameTaken       = errors.New("This username is already used.")
	ErrUnknownClient   = errors.New("Unknown client")
	ErrCannotAddPlayer = errors.New("Could not add player.")
	ErrUnknownRoom     = errors.New("Unknown room.")
	ErrRoomExists      = errors.New("This room name is already used.")
	ErrTooManyRooms    = errors.New("Too many rooms.")
	ErrTooManyClients  = errors.New("Too many connections.")
	ErrTooManyFromIP   = errors.New("Too many connections from your address.")
	ErrUnknownPlayer   = errors.New("Unknown player.")
	ErrNotInRoom       = errors.New("Not in a room.")
	ErrRoomClosed      = errors.New("Room closed.")
)

// result is the {success, error} reply shape used by every command.
type result map[string]any

func ok(extra ...any) result {
	r := result{"success": true}
	for i := 0; i+1 < len(extra); i += 2 {
		r[extra[i].(string)] = extra[i+1]
	}
	return r
}

func fail(err error) result {
	return result{"success": false, "error": err.Error()}
}
