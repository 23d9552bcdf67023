// Package wire defines the JSON envelopes exchanged on the netplay wire
// protocol and helpers to build the built-in control and gameplay messages.
package wire

import (
	"encoding/json"
	"time"
)

// Built-in message types. Host applications register handlers for their
// own types; heartbeat and ack are intercepted by the session before the
// dispatcher or any user handler sees them, while the five gameplay types
// below are ordinary typed records a handler can subscribe to.
const (
	TypeHeartbeat = "heartbeat"
	TypeAck       = "ack"
	TypeLogin     = "login"
	TypeMove      = "move"
	TypeChat      = "chat"
	TypeInteract  = "interact"
	TypeInventory = "inventory"
)

// ProtocolVersion is the version advertised in every login message.
const ProtocolVersion = "1.0.0"

// Envelope is the minimal shape every wire record shares: a type tag.
// Concrete payloads decode their own fields from the same bytes.
type Envelope struct {
	Type string `json:"type"`
}

// ParseType extracts the "type" field from a raw record without decoding
// the rest of the payload. It returns ("", err) if the record is malformed
// JSON, is not an object, or has a non-string type field; an object with no
// type field yields ("", nil).
func ParseType(record []byte) (string, error) {
	var env Envelope
	if err := json.Unmarshal(record, &env); err != nil {
		return "", err
	}
	return env.Type, nil
}

// Vector3 is a 3-component float vector used for position and rotation.
type Vector3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Heartbeat is the liveness probe envelope. The peer echoes Seq and stamps
// TEcho on reply.
type Heartbeat struct {
	Type  string `json:"type"`
	Seq   uint64 `json:"seq"`
	T     int64  `json:"t"`
	TEcho int64  `json:"t_echo,omitempty"`
}

// Ack acknowledges delivery of the application record with sequence Seq.
type Ack struct {
	Type string `json:"type"`
	Seq  uint64 `json:"seq"`
}

// Login is the first message a session sends after the transport connects.
type Login struct {
	Type     string `json:"type"`
	Username string `json:"username"`
	Password string `json:"password"`
	Version  string `json:"version"`
	Platform string `json:"platform"`
}

// Move reports a position/rotation update.
type Move struct {
	Type      string  `json:"type"`
	Position  Vector3 `json:"position"`
	Rotation  Vector3 `json:"rotation"`
	Timestamp int64   `json:"timestamp"`
}

// Chat carries a text message on a channel.
type Chat struct {
	Type    string `json:"type"`
	Message string `json:"message"`
	Channel string `json:"channel"`
}

// Interact reports an action taken against an entity.
type Interact struct {
	Type     string `json:"type"`
	EntityID uint64 `json:"entity_id"`
	Action   string `json:"action"`
}

// InventoryAction reports a quantity change against an inventory item.
type InventoryAction struct {
	Type     string `json:"type"`
	ItemID   string `json:"item_id"`
	Quantity int    `json:"quantity"`
	Action   string `json:"action"`
}

// BuildHeartbeat returns the JSON bytes for a heartbeat probe with the
// given sequence, stamped with the current time.
func BuildHeartbeat(seq uint64) []byte {
	b, _ := json.Marshal(Heartbeat{
		Type: TypeHeartbeat,
		Seq:  seq,
		T:    time.Now().UnixMilli(),
	})
	return b
}

// BuildHeartbeatEcho returns the echo reply for an inbound heartbeat.
func BuildHeartbeatEcho(seq uint64, t int64) []byte {
	b, _ := json.Marshal(Heartbeat{
		Type:  TypeHeartbeat,
		Seq:   seq,
		T:     t,
		TEcho: time.Now().UnixMilli(),
	})
	return b
}

// BuildAck returns the acknowledgment envelope for sequence seq.
func BuildAck(seq uint64) []byte {
	b, _ := json.Marshal(Ack{Type: TypeAck, Seq: seq})
	return b
}

// BuildLoginMessage returns a login envelope for the given credentials.
func BuildLoginMessage(username, password string) []byte {
	b, _ := json.Marshal(Login{
		Type:     TypeLogin,
		Username: username,
		Password: password,
		Version:  ProtocolVersion,
		Platform: "desktop",
	})
	return b
}

// BuildMoveMessage returns a move envelope stamped with the current time.
func BuildMoveMessage(position, rotation Vector3) []byte {
	b, _ := json.Marshal(Move{
		Type:      TypeMove,
		Position:  position,
		Rotation:  rotation,
		Timestamp: time.Now().UnixMilli(),
	})
	return b
}

// BuildChatMessage returns a chat envelope on the given channel.
func BuildChatMessage(message, channel string) []byte {
	if channel == "" {
		channel = "global"
	}
	b, _ := json.Marshal(Chat{Type: TypeChat, Message: message, Channel: channel})
	return b
}

// BuildInteractionMessage returns an interact envelope against entityID.
func BuildInteractionMessage(entityID uint64, action string) []byte {
	b, _ := json.Marshal(Interact{Type: TypeInteract, EntityID: entityID, Action: action})
	return b
}

// BuildInventoryAction returns an inventory envelope for itemID.
func BuildInventoryAction(itemID string, quantity int, action string) []byte {
	b, _ := json.Marshal(InventoryAction{
		Type:     TypeInventory,
		ItemID:   itemID,
		Quantity: quantity,
		Action:   action,
	})
	return b
}
