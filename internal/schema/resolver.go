// Package schema resolves the protocol description used by the schema
// codec: where it is loaded from, and how the loaded result is cached.
package schema

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protodesc"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/reflect/protoregistry"
	"google.golang.org/protobuf/types/descriptorpb"
)

// DefaultPath is the well-known location of a deployed schema file.
const DefaultPath = "minesync.schema.json"

// ErrEnvelopeMissing is returned when a loaded descriptor set does not
// define the envelope message.
var ErrEnvelopeMissing = errors.New("schema: envelope message not found")

// ErrFieldMismatch is returned when a loaded descriptor set declares a
// known field with a different type or cardinality than the builtin one.
var ErrFieldMismatch = errors.New("schema: field does not match the wire schema")

// Source produces a descriptor set.
type Source interface {
	Load(ctx context.Context) (*descriptorpb.FileDescriptorSet, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx context.Context) (*descriptorpb.FileDescriptorSet, error)

// Load calls f.
func (f SourceFunc) Load(ctx context.Context) (*descriptorpb.FileDescriptorSet, error) {
	return f(ctx)
}

// Builtin returns the compiled-in schema.
func Builtin() Source {
	return SourceFunc(func(ctx context.Context) (*descriptorpb.FileDescriptorSet, error) {
		return BuiltinSet(), nil
	})
}

// File loads a descriptor set from path. Files ending in .json are parsed
// as protojson, anything else as binary protobuf.
func File(path string) Source {
	return SourceFunc(func(ctx context.Context) (*descriptorpb.FileDescriptorSet, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("schema: read %s: %w", path, err)
		}
		set := &descriptorpb.FileDescriptorSet{}
		if filepath.Ext(path) == ".json" {
			err = protojson.Unmarshal(data, set)
		} else {
			err = proto.Unmarshal(data, set)
		}
		if err != nil {
			return nil, fmt.Errorf("schema: parse %s: %w", path, err)
		}
		return set, nil
	})
}

// MarshalJSON renders a descriptor set in the format File reads back.
func MarshalJSON(set *descriptorpb.FileDescriptorSet) ([]byte, error) {
	return protojson.MarshalOptions{Multiline: true, Indent: "  "}.Marshal(set)
}

// Schema is a resolved, immutable protocol description.
type Schema struct {
	files    *protoregistry.Files
	envelope protoreflect.MessageDescriptor
}

// Envelope returns the descriptor of the top-level frame message.
func (s *Schema) Envelope() protoreflect.MessageDescriptor {
	return s.envelope
}

// Message looks up a message descriptor by its full name.
func (s *Schema) Message(fullName string) (protoreflect.MessageDescriptor, error) {
	d, err := s.files.FindDescriptorByName(protoreflect.FullName(fullName))
	if err != nil {
		return nil, fmt.Errorf("schema: %s: %w", fullName, err)
	}
	md, ok := d.(protoreflect.MessageDescriptor)
	if !ok {
		return nil, fmt.Errorf("schema: %s is not a message", fullName)
	}
	return md, nil
}

func compile(set *descriptorpb.FileDescriptorSet) (*Schema, error) {
	files, err := protodesc.NewFiles(set)
	if err != nil {
		return nil, fmt.Errorf("schema: compile descriptors: %w", err)
	}
	s := &Schema{files: files}
	env, err := s.Message(EnvelopeName)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEnvelopeMissing, err)
	}
	if env.Oneofs().ByName(OneofName) == nil {
		return nil, fmt.Errorf("%w: %s has no oneof %q", ErrEnvelopeMissing, EnvelopeName, OneofName)
	}
	s.envelope = env
	if err := s.conform(builtinFile()); err != nil {
		return nil, err
	}
	return s, nil
}

// conform checks every field of want that the loaded schema also declares.
// Messages and fields absent from the loaded schema are left to the codec,
// which reports them per message.
func (s *Schema) conform(want *descriptorpb.FileDescriptorProto) error {
	for _, mp := range want.GetMessageType() {
		name := want.GetPackage() + "." + mp.GetName()
		md, err := s.Message(name)
		if err != nil {
			continue
		}
		for _, fp := range mp.GetField() {
			fd := md.Fields().ByName(protoreflect.Name(fp.GetName()))
			if fd == nil {
				continue
			}
			if err := conformField(fd, fp); err != nil {
				return fmt.Errorf("%w: %s.%s %s", ErrFieldMismatch, name, fp.GetName(), err)
			}
		}
	}
	return nil
}

func conformField(fd protoreflect.FieldDescriptor, fp *descriptorpb.FieldDescriptorProto) error {
	if want := protoreflect.Kind(fp.GetType()); fd.Kind() != want {
		return fmt.Errorf("is %s, want %s", fd.Kind(), want)
	}
	repeated := fp.GetLabel() == descriptorpb.FieldDescriptorProto_LABEL_REPEATED
	if fd.IsMap() || (fd.Cardinality() == protoreflect.Repeated) != repeated {
		return fmt.Errorf("has cardinality %s, want repeated=%v", fd.Cardinality(), repeated)
	}
	if tn := fp.GetTypeName(); tn != "" {
		if want := protoreflect.FullName(strings.TrimPrefix(tn, ".")); fd.Message().FullName() != want {
			return fmt.Errorf("has type %s, want %s", fd.Message().FullName(), want)
		}
	}
	if fp.OneofIndex != nil {
		if o := fd.ContainingOneof(); o == nil || o.Name() != OneofName {
			return fmt.Errorf("is not part of oneof %q", OneofName)
		}
	}
	return nil
}

// Resolver loads a schema from its Source once and hands out the cached
// result afterwards. A failed load is not cached: the next call retries.
type Resolver struct {
	source Source

	mu     sync.Mutex
	schema *Schema
	loads  int
}

// NewResolver returns a Resolver backed by source.
func NewResolver(source Source) *Resolver {
	return &Resolver{source: source}
}

// Schema returns the resolved schema, loading it on first use. Concurrent
// callers wait for a single in-flight load.
func (r *Resolver) Schema(ctx context.Context) (*Schema, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.schema != nil {
		return r.schema, nil
	}

	r.loads++
	set, err := r.source.Load(ctx)
	if err != nil {
		return nil, err
	}
	s, err := compile(set)
	if err != nil {
		return nil, err
	}
	r.schema = s
	return s, nil
}

// Loaded reports whether a schema has been resolved.
func (r *Resolver) Loaded() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.schema != nil
}

// Loads returns how many times the source has been asked to load.
func (r *Resolver) Loads() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.loads
}
