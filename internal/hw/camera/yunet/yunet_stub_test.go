//go:build !gocv
// +build !gocv

package yunet

import (
	"testing"

	"github.com/cjeanneret/PanTrack/internal/logic/geometry"
)

func TestOpen_DisabledWithoutOpenCV(t *testing.T) {
	src, err := Open(Config{ModelPath: "model.onnx", Frame: geometry.Frame{Width: 300, Height: 300}})
	if err == nil {
		t.Fatal("expected error when built without gocv")
	}
	if src != nil {
		t.Errorf("src = %v, want nil", src)
	}
}
