package room

import "github.com/google/uuid"

// Client is one end user's session record. It outlives any single socket:
// disconnecting only flips IsOnline, it does not delete the record.
type Client struct {
	UUID       string
	Pin        string
	Name       string
	RemoteAddr string
	IsOnline   bool
	ServerID   string
}

// DistClient is the public projection of a Client safe to hand to other
// end-user clients: uuid, name, and the id of the server currently hosting
// it. Never includes Pin or RemoteAddr.
type DistClient struct {
	UUID     string `json:"uuid"`
	Name     string `json:"name"`
	ServerID string `json:"serverId"`
}

// Public returns the DistClient projection of c.
func (c *Client) Public() DistClient {
	return DistClient{UUID: c.UUID, Name: c.Name, ServerID: c.ServerID}
}

func newUUID() string { return uuid.NewString() }

func newPin() string { return uuid.NewString() }
