package world

import (
	"context"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
)

// Benchmark streaming around a moving observer: each iteration shifts the
// observer by one region so loads and unloads both run.
func BenchmarkStreamAround(b *testing.B) {
	s := testSettings()
	w := New(Options{Settings: s, Generator: flatGenerator(), Store: newMemStore()})
	defer w.Close(context.Background())
	ctx := context.Background()

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		at := mgl32.Vec3{float32(i%4) * 32, 40, 0}
		w.Update(at)
		if err := w.WaitIdle(ctx); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkSetBlock(b *testing.B) {
	w := New(Options{Settings: testSettings(), Generator: flatGenerator()})
	defer w.Close(context.Background())

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		w.SetBlock(i%64, 40, (i/64)%64, 1)
		if i%256 == 0 {
			w.Update(mgl32.Vec3{0, 40, 0})
		}
	}
}
