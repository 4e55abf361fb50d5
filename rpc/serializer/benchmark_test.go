package serializer

import (
	"bytes"
	"testing"

	"github.com/cbergmann/permafrost/rpc/common"
)

// benchmarkMessage builds a realistic mid-sized request
func benchmarkMessage() common.Message {
	return common.Message{
		MsgType: common.MsgTKVSet,
		Key:     "benchmark-key-with-realistic-length",
		Value:   bytes.Repeat([]byte("v"), 512),
	}
}

func BenchmarkSerialize(b *testing.B) {
	msg := benchmarkMessage()

	for name, factory := range testSerializers {
		b.Run(name, func(b *testing.B) {
			serializer := factory()
			b.ResetTimer()

			for i := 0; i < b.N; i++ {
				if _, err := serializer.Serialize(msg); err != nil {
					b.Fatalf("Serialize failed: %v", err)
				}
			}
		})
	}
}

func BenchmarkDeserialize(b *testing.B) {
	msg := benchmarkMessage()

	for name, factory := range testSerializers {
		b.Run(name, func(b *testing.B) {
			serializer := factory()
			data, err := serializer.Serialize(msg)
			if err != nil {
				b.Fatalf("Serialize failed: %v", err)
			}
			b.ResetTimer()

			for i := 0; i < b.N; i++ {
				var result common.Message
				if err := serializer.Deserialize(data, &result); err != nil {
					b.Fatalf("Deserialize failed: %v", err)
				}
			}
		})
	}
}

func BenchmarkRoundTrip(b *testing.B) {
	msg := benchmarkMessage()

	for name, factory := range testSerializers {
		b.Run(name, func(b *testing.B) {
			serializer := factory()
			b.ResetTimer()

			for i := 0; i < b.N; i++ {
				data, err := serializer.Serialize(msg)
				if err != nil {
					b.Fatalf("Serialize failed: %v", err)
				}
				var result common.Message
				if err := serializer.Deserialize(data, &result); err != nil {
					b.Fatalf("Deserialize failed: %v", err)
				}
			}
		})
	}
}
