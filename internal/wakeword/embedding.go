package wakeword

import (
	"fmt"

	"github.com/hammamikhairi/ottocook/internal/domain"
	ort "github.com/yalue/onnxruntime_go"
)

// EmbeddingWindow maintains a ring of the most recent mel frames and runs
// the stage-2 model whenever at least domain.EmbeddingWindowFrames are
// available, retiring domain.EmbeddingHopFrames frames on each advance.
type EmbeddingWindow struct {
	session *ort.AdvancedSession
	in      *ort.Tensor[float32]
	out     *ort.Tensor[float32]

	mel []domain.MelFrame // accumulated, oldest first
}

// NewEmbeddingWindow loads the stage-2 model from modelPath.
func NewEmbeddingWindow(modelPath string) (*EmbeddingWindow, error) {
	in, err := ort.NewEmptyTensor[float32](ort.NewShape(1, domain.EmbeddingWindowFrames, domain.MelBins, 1))
	if err != nil {
		return nil, fmt.Errorf("%w: embedding input tensor: %v", domain.ErrModelLoadError, err)
	}

	out, err := ort.NewEmptyTensor[float32](ort.NewShape(1, 1, 1, domain.EmbeddingDim))
	if err != nil {
		in.Destroy()
		return nil, fmt.Errorf("%w: embedding output tensor: %v", domain.ErrModelLoadError, err)
	}

	inInfo, outInfo, err := ort.GetInputOutputInfo(modelPath)
	if err != nil {
		in.Destroy()
		out.Destroy()
		return nil, fmt.Errorf("%w: embedding io info: %v", domain.ErrModelLoadError, err)
	}

	sess, err := ort.NewAdvancedSession(modelPath,
		[]string{inInfo[0].Name}, []string{outInfo[0].Name},
		[]ort.Value{in}, []ort.Value{out}, nil)
	if err != nil {
		in.Destroy()
		out.Destroy()
		return nil, fmt.Errorf("%w: embedding session: %v", domain.ErrModelLoadError, err)
	}

	return &EmbeddingWindow{
		session: sess,
		in:      in,
		out:     out,
		mel:     make([]domain.MelFrame, 0, domain.EmbeddingWindowFrames*4),
	}, nil
}

// Advance appends newFrames to the mel ring and runs the stage-2 model once
// per domain.EmbeddingHopFrames retired, for as long as the ring holds at
// least domain.EmbeddingWindowFrames. Produced embeddings are appended to
// dst, which is returned extended.
func (w *EmbeddingWindow) Advance(newFrames []domain.MelFrame, dst []domain.EmbeddingFrame) ([]domain.EmbeddingFrame, error) {
	w.mel = append(w.mel, newFrames...)

	for len(w.mel) >= domain.EmbeddingWindowFrames {
		inData := w.in.GetData()
		for i := 0; i < domain.EmbeddingWindowFrames; i++ {
			for b := 0; b < domain.MelBins; b++ {
				inData[i*domain.MelBins+b] = w.mel[i][b]
			}
		}

		if err := w.session.Run(); err != nil {
			return dst, fmt.Errorf("%w: embedding run: %v", domain.ErrModelInferenceError, err)
		}

		outData := w.out.GetData()
		var emb domain.EmbeddingFrame
		copy(emb[:], outData[:domain.EmbeddingDim])
		dst = append(dst, emb)

		// Retire the oldest hop-worth of frames, compacting in place so the
		// backing array doesn't grow unbounded.
		n := copy(w.mel, w.mel[domain.EmbeddingHopFrames:])
		w.mel = w.mel[:n]
	}
	return dst, nil
}

// Reset discards all buffered mel frames, e.g. after a Pause/Resume cycle.
func (w *EmbeddingWindow) Reset() {
	w.mel = w.mel[:0]
}

// Close releases the ONNX session and tensors.
func (w *EmbeddingWindow) Close() {
	w.session.Destroy()
	w.in.Destroy()
	w.out.Destroy()
}
