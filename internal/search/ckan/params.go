package ckan

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/mohammed-shakir/map-search-pager/internal/core/model"
)

const packageSearchPath = "/api/3/action/package_search"

func PackageSearchEndpoint(ckanBase string) string {
	return strings.TrimRight(ckanBase, "/") + packageSearchPath
}

// BuildSearchParams maps a page request onto package_search query parameters.
// Extras become top-level parameters, which is how the spatial extension reads them.
func BuildSearchParams(req model.PageRequest) (url.Values, error) {
	params := url.Values{}
	if q := strings.TrimSpace(req.Query); q != "" {
		params.Set("q", q)
	}
	params.Set("rows", strconv.Itoa(req.Rows))
	params.Set("start", strconv.Itoa(req.Start))

	// polygon wins when both are present
	switch {
	case len(req.Extras.Poly) > 0:
		b, err := json.Marshal(req.Extras.Poly)
		if err != nil {
			return nil, fmt.Errorf("encode poly: %w", err)
		}
		params.Set("poly", string(b))
	case req.Extras.ExtBBox != "":
		params.Set("ext_bbox", req.Extras.ExtBBox)
	}
	return params, nil
}
