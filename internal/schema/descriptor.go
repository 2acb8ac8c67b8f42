package schema

import (
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/descriptorpb"
)

// Package and envelope names of the wire schema.
const (
	PackageName  = "minesync.v1"
	FileName     = "minesync/v1/messages.proto"
	EnvelopeName = PackageName + ".Envelope"
	OneofName    = "message"
)

type (
	fieldType = descriptorpb.FieldDescriptorProto_Type
)

const (
	tString  = descriptorpb.FieldDescriptorProto_TYPE_STRING
	tBool    = descriptorpb.FieldDescriptorProto_TYPE_BOOL
	tDouble  = descriptorpb.FieldDescriptorProto_TYPE_DOUBLE
	tUint32  = descriptorpb.FieldDescriptorProto_TYPE_UINT32
	tInt32   = descriptorpb.FieldDescriptorProto_TYPE_INT32
	tBytes   = descriptorpb.FieldDescriptorProto_TYPE_BYTES
	tMessage = descriptorpb.FieldDescriptorProto_TYPE_MESSAGE
)

func scalar(name string, number int32, typ fieldType) *descriptorpb.FieldDescriptorProto {
	return &descriptorpb.FieldDescriptorProto{
		Name:   proto.String(name),
		Number: proto.Int32(number),
		Label:  descriptorpb.FieldDescriptorProto_LABEL_OPTIONAL.Enum(),
		Type:   typ.Enum(),
	}
}

func message(name string, number int32, typeName string) *descriptorpb.FieldDescriptorProto {
	f := scalar(name, number, tMessage)
	f.TypeName = proto.String("." + PackageName + "." + typeName)
	return f
}

func repeated(name string, number int32, typeName string) *descriptorpb.FieldDescriptorProto {
	f := message(name, number, typeName)
	f.Label = descriptorpb.FieldDescriptorProto_LABEL_REPEATED.Enum()
	return f
}

func variant(name string, number int32, typeName string) *descriptorpb.FieldDescriptorProto {
	f := message(name, number, typeName)
	f.OneofIndex = proto.Int32(0)
	return f
}

func msg(name string, fields ...*descriptorpb.FieldDescriptorProto) *descriptorpb.DescriptorProto {
	return &descriptorpb.DescriptorProto{Name: proto.String(name), Field: fields}
}

// builtinFile describes the wire schema. Field numbers of the envelope
// follow the order of the message kinds and must never be reused.
//
// Grid payloads are packed bytes: one byte per board cell, little-endian
// uint16 (row, col) pairs for safe cells, and 5-byte (row u16, col u16,
// type u8) records for cell updates. Optional int32 fields use -1 when
// absent.
func builtinFile() *descriptorpb.FileDescriptorProto {
	envelope := msg("Envelope",
		variant("nickname", 1, "Nickname"),
		variant("cursor", 2, "Cursor"),
		variant("cell_click", 3, "CellClick"),
		variant("hint", 4, "Hint"),
		variant("new_game", 5, "NewGame"),
		variant("chat", 6, "Chat"),
		variant("ping", 7, "Ping"),
		variant("pong", 8, "Pong"),
		variant("game_state", 9, "GameState"),
		variant("players", 10, "Players"),
		variant("error", 11, "Error"),
		variant("cell_update", 12, "CellUpdate"),
	)
	envelope.OneofDecl = []*descriptorpb.OneofDescriptorProto{{Name: proto.String(OneofName)}}

	return &descriptorpb.FileDescriptorProto{
		Name:    proto.String(FileName),
		Package: proto.String(PackageName),
		Syntax:  proto.String("proto3"),
		MessageType: []*descriptorpb.DescriptorProto{
			envelope,
			msg("Nickname",
				scalar("name", 1, tString),
			),
			msg("Cursor",
				scalar("player_id", 1, tString),
				scalar("nickname", 2, tString),
				scalar("color", 3, tString),
				scalar("x", 4, tDouble),
				scalar("y", 5, tDouble),
			),
			msg("CellClick",
				scalar("row", 1, tUint32),
				scalar("col", 2, tUint32),
				scalar("flag", 3, tBool),
			),
			msg("Hint",
				scalar("row", 1, tUint32),
				scalar("col", 2, tUint32),
			),
			msg("NewGame"),
			msg("Chat",
				scalar("player_id", 1, tString),
				scalar("nickname", 2, tString),
				scalar("color", 3, tString),
				scalar("text", 4, tString),
				scalar("is_system", 5, tBool),
				scalar("action", 6, tString),
				scalar("row", 7, tInt32),
				scalar("col", 8, tInt32),
			),
			msg("Ping"),
			msg("Pong"),
			msg("FlagColor",
				scalar("cell", 1, tUint32),
				scalar("color", 2, tString),
			),
			msg("CellHint",
				scalar("row", 1, tUint32),
				scalar("col", 2, tUint32),
				scalar("type", 3, tString),
			),
			msg("GameState",
				scalar("rows", 1, tUint32),
				scalar("cols", 2, tUint32),
				scalar("mines", 3, tUint32),
				scalar("game_over", 4, tBool),
				scalar("game_won", 5, tBool),
				scalar("revealed", 6, tUint32),
				scalar("hints_used", 7, tUint32),
				scalar("board", 8, tBytes),
				repeated("flag_colors", 9, "FlagColor"),
				scalar("safe_cells", 10, tBytes),
				repeated("cell_hints", 11, "CellHint"),
				scalar("loser_player_id", 12, tString),
				scalar("loser_nickname", 13, tString),
			),
			msg("Player",
				scalar("id", 1, tString),
				scalar("nickname", 2, tString),
				scalar("color", 3, tString),
			),
			msg("Players",
				repeated("players", 1, "Player"),
			),
			msg("Error",
				scalar("error", 1, tString),
			),
			msg("CellUpdate",
				scalar("game_over", 1, tBool),
				scalar("game_won", 2, tBool),
				scalar("revealed", 3, tInt32),
				scalar("hints_used", 4, tInt32),
				scalar("loser_player_id", 5, tString),
				scalar("loser_nickname", 6, tString),
				scalar("updates", 7, tBytes),
			),
		},
	}
}

// BuiltinSet returns a fresh copy of the compiled-in descriptor set.
func BuiltinSet() *descriptorpb.FileDescriptorSet {
	return &descriptorpb.FileDescriptorSet{File: []*descriptorpb.FileDescriptorProto{builtinFile()}}
}
