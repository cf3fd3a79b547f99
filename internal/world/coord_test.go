package world

import "testing"

func TestChunkCoord_LessIsTotalOrder(t *testing.T) {
	ordered := []ChunkCoord{
		{X: -2, Y: 5, Z: 5},
		{X: 0, Y: -1, Z: 9},
		{X: 0, Y: 0, Z: -3},
		{X: 0, Y: 0, Z: 4},
		{X: 3, Y: -7, Z: 0},
	}
	for i := 0; i < len(ordered); i++ {
		for j := 0; j < len(ordered); j++ {
			got := ordered[i].Less(ordered[j])
			want := i < j
			if got != want {
				t.Fatalf("Less(%s, %s) = %v, want %v", ordered[i], ordered[j], got, want)
			}
		}
	}
}

func TestChunkCoord_Chebyshev(t *testing.T) {
	cases := []struct {
		a, b ChunkCoord
		want int
	}{
		{ChunkCoord{}, ChunkCoord{}, 0},
		{ChunkCoord{}, ChunkCoord{X: 2, Y: 1, Z: 0}, 2},
		{ChunkCoord{}, ChunkCoord{X: -1, Y: -4, Z: 2}, 4},
		{ChunkCoord{X: 5, Y: 5, Z: 5}, ChunkCoord{X: 5, Y: 5, Z: 2}, 3},
	}
	for _, tc := range cases {
		if got := tc.a.Chebyshev(tc.b); got != tc.want {
			t.Fatalf("Chebyshev(%s, %s) = %d, want %d", tc.a, tc.b, got, tc.want)
		}
		if got := tc.b.Chebyshev(tc.a); got != tc.want {
			t.Fatalf("Chebyshev(%s, %s) = %d, want %d (symmetry)", tc.b, tc.a, got, tc.want)
		}
	}
}

func TestChunkOf_FloorsNegatives(t *testing.T) {
	cases := []struct {
		x, y, z int
		want    ChunkCoord
	}{
		{0, 0, 0, ChunkCoord{}},
		{15, 15, 15, ChunkCoord{}},
		{16, 0, 0, ChunkCoord{X: 1}},
		{-1, 0, 0, ChunkCoord{X: -1}},
		{-16, -17, 31, ChunkCoord{X: -1, Y: -2, Z: 1}},
	}
	for _, tc := range cases {
		if got := ChunkOf(tc.x, tc.y, tc.z); got != tc.want {
			t.Fatalf("ChunkOf(%d, %d, %d) = %s, want %s", tc.x, tc.y, tc.z, got, tc.want)
		}
	}
}

func TestBlocks_SetReportsChange(t *testing.T) {
	b := NewBlocks()
	if !b.Set(3, 9, 1, 7) {
		t.Fatalf("Set on fresh cell reported no change")
	}
	if b.Set(3, 9, 1, 7) {
		t.Fatalf("Set with same value reported change")
	}
	if got := b.Get(3, 9, 1); got != 7 {
		t.Fatalf("Get = %d, want 7", got)
	}
}
