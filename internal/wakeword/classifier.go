package wakeword

import (
	"fmt"

	"github.com/hammamikhairi/ottocook/internal/domain"
	ort "github.com/yalue/onnxruntime_go"
)

// Classifier wraps one stage-3 keyword model. It keeps its own ring of the
// domain.ClassifierWindow most recent embeddings and scores on every new
// one. Multiple Classifiers can share the same upstream EmbeddingWindow
// output to support several wake-word models loaded side by side.
type Classifier struct {
	ModelName string
	Threshold float64

	session *ort.AdvancedSession
	in      *ort.Tensor[float32]
	out     *ort.Tensor[float32]

	window []domain.EmbeddingFrame // oldest first, capped at ClassifierWindow
}

// NewClassifier loads a stage-3 model from modelPath, identified by
// modelName in emitted DetectionEvents.
func NewClassifier(modelName, modelPath string, threshold float64) (*Classifier, error) {
	in, err := ort.NewEmptyTensor[float32](ort.NewShape(1, domain.ClassifierWindow, domain.EmbeddingDim))
	if err != nil {
		return nil, fmt.Errorf("%w: classifier input tensor: %v", domain.ErrModelLoadError, err)
	}

	out, err := ort.NewEmptyTensor[float32](ort.NewShape(1, 1))
	if err != nil {
		in.Destroy()
		return nil, fmt.Errorf("%w: classifier output tensor: %v", domain.ErrModelLoadError, err)
	}

	inInfo, outInfo, err := ort.GetInputOutputInfo(modelPath)
	if err != nil {
		in.Destroy()
		out.Destroy()
		return nil, fmt.Errorf("%w: classifier io info: %v", domain.ErrModelLoadError, err)
	}

	sess, err := ort.NewAdvancedSession(modelPath,
		[]string{inInfo[0].Name}, []string{outInfo[0].Name},
		[]ort.Value{in}, []ort.Value{out}, nil)
	if err != nil {
		in.Destroy()
		out.Destroy()
		return nil, fmt.Errorf("%w: classifier session: %v", domain.ErrModelLoadError, err)
	}

	return &Classifier{
		ModelName: modelName,
		Threshold: threshold,
		session:   sess,
		in:        in,
		out:       out,
		window:    make([]domain.EmbeddingFrame, 0, domain.ClassifierWindow),
	}, nil
}

// Score folds newEmbedding into the classifier's window and, once at least
// domain.ClassifierWindow embeddings have been seen, runs the stage-3
// model and returns the resulting confidence. ok is false while still
// warming up.
func (c *Classifier) Score(newEmbedding domain.EmbeddingFrame) (confidence float64, ok bool, err error) {
	c.window = append(c.window, newEmbedding)
	if len(c.window) > domain.ClassifierWindow {
		c.window = c.window[len(c.window)-domain.ClassifierWindow:]
	}
	if len(c.window) < domain.ClassifierWindow {
		return 0, false, nil
	}

	inData := c.in.GetData()
	for i, emb := range c.window {
		copy(inData[i*domain.EmbeddingDim:], emb[:])
	}

	if err := c.session.Run(); err != nil {
		return 0, false, fmt.Errorf("%w: classifier run: %v", domain.ErrModelInferenceError, err)
	}

	return float64(c.out.GetData()[0]), true, nil
}

// Reset discards buffered embeddings, e.g. after a Pause/Resume cycle.
func (c *Classifier) Reset() {
	c.window = c.window[:0]
}

// Close releases the ONNX session and tensors.
func (c *Classifier) Close() {
	c.session.Destroy()
	c.in.Destroy()
	c.out.Destroy()
}
