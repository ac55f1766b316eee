package trainer

import (
	"math/rand"

	"github.com/cozy-creator/xray-classifier/internal/nn"
)

const (
	DropoutRate = 0.2
	HiddenUnits = 512
)

// BuildNetwork returns the classifier for height x width RGB input and
// numClasses outputs, initialized from seed:
//
//	rescale 1/255, three conv(3x3, same, relu) + maxpool(2) stages with 16,
//	32 and 64 filters, dropout, flatten, dense(512, relu), dense(softmax).
func BuildNetwork(height, width, numClasses int, seed int64) (*nn.Sequential, error) {
	model := nn.NewSequential(nn.Shape{height, width, 3},
		nn.NewRescaling(1.0/255, 0),
		nn.NewConv2D(16, 3, nn.PaddingSame, nn.ActivationReLU),
		nn.NewMaxPool2D(2),
		nn.NewConv2D(32, 3, nn.PaddingSame, nn.ActivationReLU),
		nn.NewMaxPool2D(2),
		nn.NewConv2D(64, 3, nn.PaddingSame, nn.ActivationReLU),
		nn.NewMaxPool2D(2),
		nn.NewDropout(DropoutRate),
		nn.NewFlatten(),
		nn.NewDense(HiddenUnits, nn.ActivationReLU),
		nn.NewDense(numClasses, nn.ActivationSoftmax),
	)
	if err := model.Build(rand.New(rand.NewSource(seed))); err != nil {
		return nil, err
	}
	return model, nil
}
