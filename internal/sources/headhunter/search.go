package headhunter

import (
	"context"
	"fmt"
	"net/url"
	"reflect"
	"strconv"

	"github.com/spigell/job-radar/internal/sources"

	"github.com/mitchellh/mapstructure"
)

const (
	SearchPath = "/vacancies"
	// Max value for search per page.
	perPage = "100"
)

type SearchParams struct {
	Text string `yaml:"text" mapstructure:"text"`
	// hhparam is custom tag for reflect. Please see below.
	Areas       []int    `hhparam:"area" mapstructure:"areas"`
	OrderBy     string   `yaml:"order_by" mapstructure:"order_by"`
	Employer    uint     `yaml:"employer_id" mapstructure:"employer_id"`
	SearchField string   `yaml:"search_field" mapstructure:"search_field"`
	Schedules   []string `hhparam:"schedule" mapstructure:"schedules"`
	PerPage     string   `yaml:"per_page" mapstructure:"per_page"`
	Experience  string   `yaml:"experience" mapstructure:"experience"`
	Period      uint     `yaml:"period" mapstructure:"period"`
	DateFrom    string   `hhparam:"date_from" mapstructure:"-"`
}

func (c *Client) Search(ctx context.Context, params SearchParams) ([]*Vacancy, error) {
	// Set per_page max as possible. It should be faster.
	if params.PerPage == "" {
		params.PerPage = perPage
	}

	q := buildParams(&params)
	apiURLSearch := fmt.Sprintf("%s%s", c.APIURL, SearchPath)

	items, fetchErr := c.GetItems(ctx, apiURLSearch, q)
	if len(items) == 0 {
		return nil, fetchErr
	}

	vacancies, err := decodeVacancies(items)
	if err != nil {
		return nil, sources.Permanent(Name, "decode vacancies", err)
	}

	return vacancies, fetchErr
}

func decodeVacancies(items []Item) ([]*Vacancy, error) {
	var vacancies []*Vacancy

	cfg := &mapstructure.DecoderConfig{
		Result:           &vacancies,
		TagName:          "json",
		WeaklyTypedInput: true,
	}
	decoder, err := mapstructure.NewDecoder(cfg)
	if err != nil {
		return nil, err
	}
	if err := decoder.Decode(items); err != nil {
		return nil, err
	}

	return vacancies, nil
}

func buildParams(params *SearchParams) url.Values {
	q := url.Values{}
	fields := reflect.VisibleFields(reflect.TypeOf(*params))
	for _, field := range fields {
		// Our custom tag is using here.
		key := field.Tag.Get("hhparam")
		if key == "" {
			// Failover to default tag if our tag do not exist.
			key = field.Tag.Get("yaml")
		}
		if key == "" {
			continue
		}
		value := reflect.ValueOf(params).Elem().Field(field.Index[0]).Interface()
		switch v := value.(type) {
		case []int:
			for _, item := range v {
				q.Add(key, strconv.Itoa(item))
			}
		case []string:
			for _, item := range v {
				q.Add(key, item)
			}
		default:
			s := fmt.Sprintf("%v", v)
			if s != "" && s != "0" {
				q.Set(key, s)
			}
		}
	}

	return q
}
