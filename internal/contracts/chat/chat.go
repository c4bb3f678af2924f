// Package chat appends messages to rooms. Message n of a room is stored as
// the record "chat:<room>:<n>" and announced by a chat-message block that
// carries the message digest rather than its text.
package chat

import (
	"context"
	"fmt"

	"github.com/roach88/chainvault/internal/contract"
	"github.com/roach88/chainvault/internal/ir"
	"github.com/roach88/chainvault/internal/store"
)

const Version = "v1"

// Contract names.
const (
	PostName = "chat.post"
	ReadName = "chat.read"
)

// MaxTextLen bounds a message body in bytes.
const MaxTextLen = 4096

// MessageKey returns the record id of message n in room.
func MessageKey(room string, n int64) string { return fmt.Sprintf("chat:%s:%d", room, n) }

// RoomKey returns the record id holding room's message count.
func RoomKey(room string) string { return "chatroom:" + room }

func Definitions() []contract.Definition {
	return []contract.Definition{
		{Name: PostName, Version: Version, Description: "post a message to a room", Procedure: Post},
		{Name: ReadName, Version: Version, Description: "read one message of a room", Procedure: Read},
	}
}

// Post appends "text" by "author" to "room". With "private" set the message
// record is stored encrypted.
func Post(ctx context.Context, call *contract.Call) (ir.IRObject, error) {
	room, err := contract.RequireString(call.Args, "room")
	if err != nil {
		return nil, err
	}
	author, err := contract.RequireString(call.Args, "author")
	if err != nil {
		return nil, err
	}
	text, err := contract.RequireString(call.Args, "text")
	if err != nil {
		return nil, err
	}
	if len(text) > MaxTextLen {
		return nil, contract.Reject("message is %d bytes, limit is %d", len(text), MaxTextLen)
	}
	private, _ := call.Args.Bool("private")

	meta, err := call.View.GetObject(ctx, RoomKey(room))
	if err != nil {
		return nil, err
	}
	count, _ := meta.Int("count")
	n := count + 1

	msg := ir.IRObject{
		"room":   ir.IRString(room),
		"author": ir.IRString(author),
		"text":   ir.IRString(text),
		"n":      ir.IRInt(n),
	}
	w, err := call.Storage.SaveData(ctx, MessageKey(room, n), msg, store.SaveOptions{Encrypted: private})
	if err != nil {
		return nil, err
	}
	if _, err := call.Storage.SaveData(ctx, RoomKey(room), ir.IRObject{"count": ir.IRInt(n)}, store.SaveOptions{}); err != nil {
		return nil, err
	}
	if _, err := call.Chain.AddBlock(ctx, ir.NewBlockData(ir.BlockChatMessage, ir.IRObject{
		"room":           ir.IRString(room),
		"author":         ir.IRString(author),
		"n":              ir.IRInt(n),
		"content_digest": ir.IRString(w.ContentDigest),
		"execution_id":   ir.IRString(call.ExecutionID),
	})); err != nil {
		return nil, err
	}

	return ir.IRObject{
		"room":    ir.IRString(room),
		"n":       ir.IRInt(n),
		"private": ir.IRBool(private),
	}, nil
}

// Read returns message "n" of "room".
func Read(ctx context.Context, call *contract.Call) (ir.IRObject, error) {
	room, err := contract.RequireString(call.Args, "room")
	if err != nil {
		return nil, err
	}
	n, err := contract.RequirePositive(call.Args, "n")
	if err != nil {
		return nil, err
	}
	exists, err := call.View.Has(ctx, MessageKey(room, n))
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, contract.Reject("room %s has no message %d", room, n)
	}
	return call.View.GetObject(ctx, MessageKey(room, n))
}
