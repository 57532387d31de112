package still

import (
	"fmt"

	"gocv.io/x/gocv"
)

// gocvCamera is the production Camera, opening the shared device via
// gocv.VideoCapture and encoding a single grabbed frame with
// gocv.IMEncode, the same dependency the teacher's cvpipe package
// already carries for Mat handling.
type gocvCamera struct {
	cap *gocv.VideoCapture
}

// OpenDevice builds a CameraOpener bound to a V4L2 device index (e.g. 0
// for /dev/video0).
func OpenDevice(deviceIndex int) CameraOpener {
	return func() (Camera, error) {
		cap, err := gocv.OpenVideoCapture(deviceIndex)
		if err != nil {
			return nil, fmt.Errorf("open video capture: %w", err)
		}
		return &gocvCamera{cap: cap}, nil
	}
}

func (g *gocvCamera) CaptureJPEG() ([]byte, error) {
	mat := gocv.NewMat()
	defer mat.Close()

	if ok := g.cap.Read(&mat); !ok || mat.Empty() {
		return nil, fmt.Errorf("read frame: device returned no data")
	}

	buf, err := gocv.IMEncode(gocv.JPEGFileExt, mat)
	if err != nil {
		return nil, fmt.Errorf("jpeg encode: %w", err)
	}
	defer buf.Close()

	out := make([]byte, len(buf.GetBytes()))
	copy(out, buf.GetBytes())
	return out, nil
}

func (g *gocvCamera) Close() error { return g.cap.Close() }
