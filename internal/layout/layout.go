// Package layout describes the history page's tabs and table columns. The
// exchange reshuffles its tables between releases, so columns are found by
// header keywords with a static index as the last resort.
package layout

import (
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// ColumnSpec locates one column: the first header containing any keyword
// (case-insensitive), else Fallback.
type ColumnSpec struct {
	Keywords []string `yaml:"keywords" validate:"required,min=1,dive,required"`
	Fallback int      `yaml:"fallback" validate:"gte=0"`
}

type Tabs struct {
	Trading string `yaml:"trading" validate:"required"`
	Receive string `yaml:"receive" validate:"required"`
	Send    string `yaml:"send" validate:"required"`
}

type TradingColumns struct {
	Sold      ColumnSpec `yaml:"sold"`
	Bought    ColumnSpec `yaml:"bought"`
	Completed ColumnSpec `yaml:"completed"`
}

type TransferColumns struct {
	Amount    ColumnSpec `yaml:"amount"`
	Fee       ColumnSpec `yaml:"fee"`
	Completed ColumnSpec `yaml:"completed"`
}

// Profile is the complete page description.
type Profile struct {
	Tabs           Tabs            `yaml:"tabs"`
	Trading        TradingColumns  `yaml:"trading"`
	Transfer       TransferColumns `yaml:"transfer"`
	LoadMoreLabels []string        `yaml:"load_more_labels"`
}

// Default matches the exchange's current history page.
func Default() Profile {
	return Profile{
		Tabs: Tabs{Trading: "Trading", Receive: "Receive", Send: "Send"},
		Trading: TradingColumns{
			Sold:      ColumnSpec{Keywords: []string{"sold", "paid", "spent"}, Fallback: 1},
			Bought:    ColumnSpec{Keywords: []string{"bought", "received", "got"}, Fallback: 2},
			Completed: ColumnSpec{Keywords: []string{"completed", "date", "time"}, Fallback: 4},
		},
		Transfer: TransferColumns{
			Amount:    ColumnSpec{Keywords: []string{"amount", "quantity"}, Fallback: 1},
			Fee:       ColumnSpec{Keywords: []string{"fee"}, Fallback: 2},
			Completed: ColumnSpec{Keywords: []string{"completed", "date", "time"}, Fallback: 4},
		},
		LoadMoreLabels: []string{"load more", "show more", "view more", "more results"},
	}
}

var validate = validator.New()

// Load reads a YAML profile over the defaults. Keys absent from the file keep
// their default value.
func Load(path string) (Profile, error) {
	p := Default()
	if path == "" {
		return p, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return Profile{}, fmt.Errorf("read layout %s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, &p); err != nil {
		return Profile{}, fmt.Errorf("parse layout %s: %w", path, err)
	}
	if err := p.Validate(); err != nil {
		return Profile{}, fmt.Errorf("layout %s: %w", path, err)
	}
	return p, nil
}

func (p Profile) Validate() error {
	return validate.Struct(p)
}
