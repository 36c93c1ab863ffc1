package mesh

// Box returns an axis-aligned box spanning min to max as 8 vertices and 12
// outward-facing triangles.
func Box(min, max Vec3) *Mesh {
	v := make([]Vec3, 0, 8)
	for i := 0; i < 8; i++ {
		p := min
		if i&1 != 0 {
			p[0] = max[0]
		}
		if i&2 != 0 {
			p[1] = max[1]
		}
		if i&4 != 0 {
			p[2] = max[2]
		}
		v = append(v, p)
	}
	// Corner i has x from bit 0, y from bit 1, z from bit 2.
	return &Mesh{
		Vertices: v,
		Faces: []Face{
			{0, 2, 3}, {0, 3, 1}, // z = min
			{4, 5, 7}, {4, 7, 6}, // z = max
			{0, 1, 5}, {0, 5, 4}, // y = min
			{2, 6, 7}, {2, 7, 3}, // y = max
			{0, 4, 6}, {0, 6, 2}, // x = min
			{1, 3, 7}, {1, 7, 5}, // x = max
		},
	}
}
