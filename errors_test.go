package tileflat

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestErrorIsMatchesKind(t *testing.T) {
	err := newError(KindAssetUploadFailed, "flatten", errors.New("disk full"))
	wrapped := fmt.Errorf("job: %w", err)
	if !errors.Is(wrapped, ErrAssetUploadFailed) {
		t.Error("errors.Is(wrapped, ErrAssetUploadFailed) = false, want true")
	}
	if errors.Is(wrapped, ErrBusy) {
		t.Error("errors.Is(wrapped, ErrBusy) = true, want false")
	}
	if got := KindOf(wrapped); got != KindAssetUploadFailed {
		t.Errorf("KindOf = %v, want %v", got, KindAssetUploadFailed)
	}
	if KindOf(errors.New("plain")) != KindUnknown {
		t.Error("KindOf(plain) != KindUnknown")
	}
}

func TestErrorMessage(t *testing.T) {
	err := newErrorf(KindDimensionExceedsCap, "capture", "surface %dx%d", 5000, 10)
	want := "tileflat: capture: dimension exceeds cap: surface 5000x10"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}

func TestPartialChunkFailureWrapsUpload(t *testing.T) {
	err := newError(KindPartialChunkFailure, "flatten", newError(KindAssetUploadFailed, "flatten", errors.New("x")))
	if !errors.Is(err, ErrPartialChunkFailure) || !errors.Is(err, ErrAssetUploadFailed) {
		t.Errorf("err = %v, want both partial chunk and upload kinds", err)
	}
	if KindOf(err) != KindPartialChunkFailure {
		t.Errorf("KindOf = %v, want outermost kind", KindOf(err))
	}
}

func TestUserMessage(t *testing.T) {
	if UserMessage(nil) != "" {
		t.Error("UserMessage(nil) not empty")
	}
	for k := KindUnknown; k <= KindInvalidOptions; k++ {
		msg := UserMessage(&Error{Kind: k})
		if msg == "" || !strings.HasSuffix(msg, ".") {
			t.Errorf("UserMessage(%v) = %q, want one sentence", k, msg)
		}
	}
}
