package models

import (
	"fmt"

	"github.com/nvr-ai/go-centernet/models/model"
)

// ClassSet is the ordered label list of a model family. Heatmap channel i is labelled Names[i].
type ClassSet struct {
	Family model.Family
	Names  []string
	index  map[string]int
}

// NewClassSet builds a class set and its name lookup.
func NewClassSet(family model.Family, names ...string) *ClassSet {
	s := &ClassSet{Family: family, Names: names, index: make(map[string]int, len(names))}
	for i, n := range names {
		s.index[n] = i
	}
	return s
}

// Name returns the label of heatmap channel idx.
func (s *ClassSet) Name(idx int) (string, error) {
	if idx < 0 || idx >= len(s.Names) {
		return "", fmt.Errorf("class %d out of range for family %q", idx, s.Family)
	}
	return s.Names[idx], nil
}

// Index returns the heatmap channel labelled name.
func (s *ClassSet) Index(name string) (int, error) {
	idx, ok := s.index[name]
	if !ok {
		return -1, fmt.Errorf("class %q not found in family %q", name, s.Family)
	}
	return idx, nil
}

// COCOClasses is the 80 COCO categories in heatmap channel order (no background channel).
var COCOClasses = NewClassSet(model.ModelFamilyCOCO,
	"person", "bicycle", "car", "motorcycle", "airplane", "bus", "train", "truck", "boat",
	"traffic light", "fire hydrant", "stop sign", "parking meter", "bench", "bird", "cat", "dog",
	"horse", "sheep", "cow", "elephant", "bear", "zebra", "giraffe", "backpack", "umbrella",
	"handbag", "tie", "suitcase", "frisbee", "skis", "snowboard", "sports ball", "kite",
	"baseball bat", "baseball glove", "skateboard", "surfboard", "tennis racket", "bottle",
	"wine glass", "cup", "fork", "knife", "spoon", "bowl", "banana", "apple", "sandwich", "orange",
	"broccoli", "carrot", "hot dog", "pizza", "donut", "cake", "chair", "couch", "potted plant",
	"bed", "dining table", "toilet", "tv", "laptop", "mouse", "remote", "keyboard", "cell phone",
	"microwave", "oven", "toaster", "sink", "refrigerator", "book", "clock", "vase", "scissors",
	"teddy bear", "hair drier", "toothbrush",
)

// VOCClasses is the 20 Pascal VOC categories in heatmap channel order.
var VOCClasses = NewClassSet(model.ModelFamilyVOC,
	"aeroplane", "bicycle", "bird", "boat", "bottle", "bus", "car", "cat", "chair", "cow",
	"diningtable", "dog", "horse", "motorbike", "person", "pottedplant", "sheep", "sofa", "train",
	"tvmonitor",
)

// LookupName returns the label of heatmap channel idx for a family, or "class <idx>" when the
// family or index is unknown.
func LookupName(family model.Family, idx int) string {
	var set *ClassSet
	switch family {
	case model.ModelFamilyCOCO:
		set = COCOClasses
	case model.ModelFamilyVOC:
		set = VOCClasses
	}
	if set != nil {
		if name, err := set.Name(idx); err == nil {
			return name
		}
	}
	return fmt.Sprintf("class %d", idx)
}
