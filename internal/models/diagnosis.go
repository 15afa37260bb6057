package models

import "time"

type Crop string

const (
	CropWheat Crop = "Wheat"
	CropRice  Crop = "Rice"
	CropCorn  Crop = "Corn"
)

// Crops the inference model was trained on.
var Crops = []Crop{CropWheat, CropRice, CropCorn}

func (c Crop) Valid() bool {
	for _, known := range Crops {
		if c == known {
			return true
		}
	}
	return false
}

type Diagnosis struct {
	ID         string
	UserID     *string
	Crop       Crop
	Bucket     string
	ObjectKey  string
	Format     string
	SizeBytes  int64
	Checksum   []byte
	Signature  []byte
	Prediction string
	CreatedAt  time.Time
}
