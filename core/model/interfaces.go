// Package model は推定器が共有するインターフェース、学習状態、gobによる永続化を提供する。
package model

import (
	"gonum.org/v1/gonum/mat"
)

// Estimator は教師あり学習モデル。y は n x 1 のラベル列。
type Estimator interface {
	Fit(X, y mat.Matrix) error
	Predict(X mat.Matrix) (mat.Matrix, error)
}

// Classifier は確率を出力できる分類器
type Classifier interface {
	Estimator

	// PredictProba は Classes の順に1クラス1列の確率を返す
	PredictProba(X mat.Matrix) (mat.Matrix, error)

	// Classes は学習時に見たクラスを昇順で返す
	Classes() []int
}

// FeatureImporter は不純度ベースの特徴量重要度を持つモデル。
// 重要度は非負で、合計は1。
type FeatureImporter interface {
	FeatureImportances() ([]float64, error)
}

// Transformer は訓練データで統計量を学習し、同じ統計量でデータを変換する
type Transformer interface {
	Fit(X mat.Matrix) error
	Transform(X mat.Matrix) (mat.Matrix, error)
	FitTransform(X mat.Matrix) (mat.Matrix, error)
}

// ParameterGetter はハイパーパラメータを map で公開するモデル
type ParameterGetter interface {
	GetParams() map[string]interface{}
}

// ParameterSetter はハイパーパラメータを map で更新できるモデル。
// 未知のキーや型違いはエラーにする。
type ParameterSetter interface {
	SetParams(params map[string]interface{}) error
}
