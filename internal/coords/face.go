package coords

// BlockFace identifies one of the six faces of a block.
type BlockFace int

const (
	FaceLeft   BlockFace = iota // -X
	FaceRight                   // +X
	FaceTop                     // +Y
	FaceBottom                  // -Y
	FaceBack                    // -Z
	FaceFront                   // +Z
)

// Faces lists every face in iteration order.
var Faces = [6]BlockFace{FaceLeft, FaceRight, FaceTop, FaceBottom, FaceBack, FaceFront}

var faceNormals = [6]Vec3i{
	FaceLeft:   {-1, 0, 0},
	FaceRight:  {1, 0, 0},
	FaceTop:    {0, 1, 0},
	FaceBottom: {0, -1, 0},
	FaceBack:   {0, 0, -1},
	FaceFront:  {0, 0, 1},
}

// Normal returns the outward unit normal of the face.
func (f BlockFace) Normal() Vec3i {
	return faceNormals[f]
}

func (f BlockFace) String() string {
	switch f {
	case FaceLeft:
		return "left"
	case FaceRight:
		return "right"
	case FaceTop:
		return "top"
	case FaceBottom:
		return "bottom"
	case FaceBack:
		return "back"
	case FaceFront:
		return "front"
	default:
		return "unknown"
	}
}
