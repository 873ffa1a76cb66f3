// Copyright 2024 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Package message defines the evolutionary individuals of the fuzzer: a
// single protocol Message and an ordered MessageSequence of them.
//
// Both types are generic over the protocol adapter's associated types so
// that pkg/corpus, pkg/evolve, and pkg/fuzzer never need to know the
// concrete wire format of any one protocol.
package message

// Message is one protocol message: its exact wire bytes, a finite Kind tag,
// a decomposition into named Sections, and the response time last observed
// for it (0 until the message has actually been sent).
type Message[K comparable, SK comparable, SV comparable] struct {
	Data         []byte
	Kind         K
	Sections     map[SK]SV
	ResponseTime float64
}

// New builds a message from its constituent parts. Adapters are expected to
// call this from random_message/build_message/mutate_message so that Data,
// Kind, and Sections start out mutually consistent.
func New[K comparable, SK comparable, SV comparable](data []byte, kind K, sections map[SK]SV) *Message[K, SK, SV] {
	return &Message[K, SK, SV]{Data: data, Kind: kind, Sections: sections}
}

// Clone returns a deep copy; the corpus clones messages freely, so mutation
// of a clone must never affect the original's owning sequence.
func (m *Message[K, SK, SV]) Clone() *Message[K, SK, SV] {
	if m == nil {
		return nil
	}
	data := make([]byte, len(m.Data))
	copy(data, m.Data)
	sections := make(map[SK]SV, len(m.Sections))
	for k, v := range m.Sections {
		sections[k] = v
	}
	return &Message[K, SK, SV]{
		Data:         data,
		Kind:         m.Kind,
		Sections:     sections,
		ResponseTime: m.ResponseTime,
	}
}

// Equal implements the structural equality required by the state model's
// dedup check: same Kind, same Data, same Sections. Response time is
// excluded on purpose -- it is observational, not part of the message's
// identity.
func (m *Message[K, SK, SV]) Equal(o *Message[K, SK, SV]) bool {
	if m == nil || o == nil {
		return m == o
	}
	if m.Kind != o.Kind || len(m.Data) != len(o.Data) || len(m.Sections) != len(o.Sections) {
		return false
	}
	for i := range m.Data {
		if m.Data[i] != o.Data[i] {
			return false
		}
	}
	for k, v := range m.Sections {
		if ov, ok := o.Sections[k]; !ok || ov != v {
			return false
		}
	}
	return true
}

// MessageSequence is one evolutionary individual: an ordered list of
// messages, the inter-message delays between them, and a cached fitness
// scalar recomputed from scratch every generation.
type MessageSequence[K comparable, SK comparable, SV comparable] struct {
	Messages []*Message[K, SK, SV]
	Timings  []float64
	Fitness  float64
}

// NewSequence creates an empty sequence. Timings length tracks len(Messages)-1,
// maintained by every mutation/crossover operator that touches Messages.
func NewSequence[K comparable, SK comparable, SV comparable]() *MessageSequence[K, SK, SV] {
	return &MessageSequence[K, SK, SV]{}
}

// Clone deep-copies the sequence, including every message.
func (s *MessageSequence[K, SK, SV]) Clone() *MessageSequence[K, SK, SV] {
	messages := make([]*Message[K, SK, SV], len(s.Messages))
	for i, m := range s.Messages {
		messages[i] = m.Clone()
	}
	timings := make([]float64, len(s.Timings))
	copy(timings, s.Timings)
	return &MessageSequence[K, SK, SV]{Messages: messages, Timings: timings, Fitness: s.Fitness}
}

// FixTimings trims or pads the Timings slice so its length is
// max(0, len(Messages)-1), the sequence's core invariant. New slots appended
// when growing get a delay of 1.0 seconds.
func (s *MessageSequence[K, SK, SV]) FixTimings() {
	want := len(s.Messages) - 1
	if want < 0 {
		want = 0
	}
	for len(s.Timings) > want {
		s.Timings = s.Timings[:len(s.Timings)-1]
	}
	for len(s.Timings) < want {
		s.Timings = append(s.Timings, 1.0)
	}
}
