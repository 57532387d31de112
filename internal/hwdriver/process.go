package hwdriver

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log"
	"os/exec"
	"sync"
	"time"

	"github.com/n0remac/pi-webrtc-streamer/internal/frame"
)

// nal types per the H.264 Annex-B NAL header (low 5 bits).
const (
	nalTypeSlice    = 1
	nalTypeIDR      = 5
	nalTypeSEI      = 6
	nalTypeSPS      = 7
	nalTypePPS      = 8
	nalTypeAUD      = 9
)

// ProcessDriver drives an external, raspivid-compatible encoder binary as
// a subprocess, reading its Annex-B H.264 stdout stream and classifying
// each NAL unit into a frame.Segment. The binary's path and extra args are
// configurable so this can point at any CLI that speaks the same
// contract (raspivid, a libcamera-vid wrapper, or a test fixture).
type ProcessDriver struct {
	BinPath string
	ExtraArgs []string

	mu      sync.Mutex
	cmd     *exec.Cmd
	cancel  context.CancelFunc
	stdin   io.WriteCloser
	open    bool
	capture bool
}

// NewProcessDriver builds a driver that will launch binPath on Open.
func NewProcessDriver(binPath string, extraArgs ...string) *ProcessDriver {
	return &ProcessDriver{BinPath: binPath, ExtraArgs: extraArgs}
}

func buildArgs(params Params, extra []string) []string {
	args := []string{
		"-t", "0",
		"-w", fmt.Sprint(params.Width),
		"-h", fmt.Sprint(params.Height),
		"-fps", fmt.Sprint(params.Framerate),
		"-b", fmt.Sprint(params.BitrateBps),
		"-pf", "baseline",
		"-lev", "3.1",
		"-ih", // insert PPS/SPS before every IDR
		"-sg", // accept rate/keyframe signals on stdin
		"-o", "-",
	}
	return append(args, extra...)
}

func (p *ProcessDriver) Open(ctx context.Context, params Params, onSegment SegmentFunc) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.open {
		return ErrBusy{}
	}

	runCtx, cancel := context.WithCancel(ctx)
	cmd := exec.CommandContext(runCtx, p.BinPath, buildArgs(params, p.ExtraArgs)...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return err
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		cancel()
		return err
	}
	stdin, err := cmd.StdinPipe()
	if err != nil {
		cancel()
		return err
	}

	if err := cmd.Start(); err != nil {
		cancel()
		return ErrDeviceMissing{Reason: err.Error()}
	}

	p.cmd = cmd
	p.cancel = cancel
	p.stdin = stdin
	p.open = true

	go func() {
		sc := bufio.NewScanner(stderr)
		sc.Buffer(make([]byte, 0, 4096), 1<<20)
		for sc.Scan() {
			log.Printf("[hwdriver] %s", sc.Text())
		}
	}()
	go p.readSegments(stdout, onSegment)

	return nil
}

func (p *ProcessDriver) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.open {
		return nil
	}
	p.open = false
	if p.cancel != nil {
		p.cancel()
	}
	if p.stdin != nil {
		p.stdin.Close()
	}
	var err error
	if p.cmd != nil {
		err = p.cmd.Wait()
	}
	return err
}

// SetRate writes a rate-change command to the subprocess's stdin. The
// external binary is assumed to understand a one-line-per-command
// protocol ("fps <n>", "bitrate <n>"), the same shape raspivid's signal
// file descriptor extension uses.
func (p *ProcessDriver) SetRate(framerate, bitrateBps int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.open {
		return fmt.Errorf("hwdriver: SetRate called while closed")
	}
	if _, err := fmt.Fprintf(p.stdin, "fps %d\n", framerate); err != nil {
		return err
	}
	_, err := fmt.Fprintf(p.stdin, "bitrate %d\n", bitrateBps)
	return err
}

func (p *ProcessDriver) ForceKeyframe() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.open {
		return
	}
	fmt.Fprintf(p.stdin, "keyframe\n")
}

func (p *ProcessDriver) SetCapturing(capturing bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.open {
		return fmt.Errorf("hwdriver: SetCapturing called while closed")
	}
	p.capture = capturing
	verb := "stop\n"
	if capturing {
		verb = "start\n"
	}
	_, err := fmt.Fprint(p.stdin, verb)
	return err
}

// readSegments scans the Annex-B byte stream for NAL units and classifies
// each one into a frame.Segment, the same extraction shape as a
// reference camera-capture subprocess reader.
func (p *ProcessDriver) readSegments(r io.Reader, onSegment SegmentFunc) {
	buf := make([]byte, 0, 1<<20)
	read := make([]byte, 1<<16)

	for {
		n, err := r.Read(read)
		if n > 0 {
			buf = append(buf, read[:n]...)
			for {
				nal, rest, ok := extractNextNAL(buf)
				if !ok {
					buf = rest
					break
				}
				buf = rest
				if len(nal) == 0 {
					continue
				}
				onSegment(classify(nal))
			}
		}
		if err != nil {
			if err != io.EOF {
				log.Printf("[hwdriver] stream read error: %v", err)
			}
			return
		}
	}
}

// startCode4 is prepended to every NAL unit re-assembled into a segment,
// so access units the Frame Queue emits stay valid Annex-B byte-addressable
// streams (the Encoder Adapter scans for these start codes downstream).
var startCode4 = []byte{0x00, 0x00, 0x00, 0x01}

func classify(nal []byte) frame.Segment {
	nalType := nal[0] & 0x1F
	var flags frame.Flags
	switch nalType {
	case nalTypeSPS, nalTypePPS:
		flags = frame.Flags(frame.FlagConfig)
	case nalTypeIDR:
		flags = frame.Flags(frame.FlagFrameStart) | frame.Flags(frame.FlagFrameEnd) | frame.Flags(frame.FlagKeyFrame)
	case nalTypeSlice:
		flags = frame.Flags(frame.FlagFrameStart) | frame.Flags(frame.FlagFrameEnd)
	default:
		// SEI/AUD and anything else ride along as part of the frame they
		// precede; tag them CONFIG (without FRAME_END) so the Frame Queue
		// holds them pending and prepends them to the following slice.
		flags = frame.Flags(frame.FlagConfig)
	}
	data := make([]byte, 0, len(startCode4)+len(nal))
	data = append(data, startCode4...)
	data = append(data, nal...)
	return frame.Segment{Data: data, Flags: flags, PTSMicros: time.Now().UnixMicro()}
}

// extractNextNAL finds the next complete Annex-B NAL unit (without its
// start code) in buf. If none is found it returns the tail to keep
// (enough bytes to detect a start code split across reads) and false.
func extractNextNAL(buf []byte) (nal []byte, remaining []byte, found bool) {
	start, startLen := findStartCode(buf, 0)
	if start == -1 {
		if len(buf) > 3 {
			return nil, buf[len(buf)-3:], false
		}
		return nil, buf, false
	}
	next, _ := findStartCode(buf, start+startLen)
	if next == -1 {
		return nil, buf, false
	}
	return buf[start+startLen : next], buf[next:], true
}

func findStartCode(buf []byte, from int) (idx int, length int) {
	for i := from; i+2 < len(buf); i++ {
		if buf[i] == 0 && buf[i+1] == 0 {
			if buf[i+2] == 1 {
				return i, 3
			}
			if i+3 < len(buf) && buf[i+2] == 0 && buf[i+3] == 1 {
				return i, 4
			}
		}
	}
	return -1, 0
}
