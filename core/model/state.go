package model

import (
	"sync"

	"github.com/YuminosukeSato/titanicrf/pkg/errors"
)

// BaseEstimator はスケーラーに埋め込む学習状態。
// gobでエンコードできるよう Fitted は公開している。
type BaseEstimator struct {
	Fitted bool
}

// IsFitted は学習済みかどうかを返す
func (e *BaseEstimator) IsFitted() bool { return e.Fitted }

// SetFitted は学習済みにする
func (e *BaseEstimator) SetFitted() { e.Fitted = true }

// Reset は未学習に戻す
func (e *BaseEstimator) Reset() { e.Fitted = false }

// StateManager は学習状態と学習時の次元を保持する。
// 森の木のように、一度学習した後で複数のgoroutineから読まれるモデルが合成して使う。
type StateManager struct {
	mu sync.RWMutex

	// gobでエンコードするため公開
	Fitted    bool
	NFeatures int
	NSamples  int
}

// NewStateManager は未学習の StateManager を作成する
func NewStateManager() *StateManager {
	return &StateManager{}
}

// IsFitted は学習済みかどうかを返す
func (s *StateManager) IsFitted() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.Fitted
}

// SetFitted は学習時の特徴量数・サンプル数とともに学習済みにする
func (s *StateManager) SetFitted(nFeatures, nSamples int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Fitted, s.NFeatures, s.NSamples = true, nFeatures, nSamples
}

// Reset は未学習に戻す
func (s *StateManager) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Fitted, s.NFeatures, s.NSamples = false, 0, 0
}

// GetDimensions は学習時の特徴量数とサンプル数を返す
func (s *StateManager) GetDimensions() (nFeatures, nSamples int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.NFeatures, s.NSamples
}

// RequireFitted は未学習なら modelName.method の NotFittedError を返す
func (s *StateManager) RequireFitted(modelName, method string) error {
	if !s.IsFitted() {
		return errors.NewNotFittedError(modelName, method)
	}
	return nil
}

// CheckFeatures は X の列数が学習時と異なれば DimensionError を返す
func (s *StateManager) CheckFeatures(op string, X interface{ Dims() (int, int) }) error {
	_, c := X.Dims()
	if nFeatures, _ := s.GetDimensions(); c != nFeatures {
		return errors.NewDimensionError(op, nFeatures, c, 1)
	}
	return nil
}
