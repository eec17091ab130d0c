package koroad

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
)

// Category selects one of the accident hotspot endpoints.
type Category string

const (
	Pedestrian      Category = "pedestrian"
	Elderly         Category = "elderly"
	LocalGovernment Category = "local_government"
	Holiday         Category = "holiday"
)

// Categories lists every hotspot category in collection order.
var Categories = []Category{Pedestrian, Elderly, LocalGovernment, Holiday}

var categoryPaths = map[Category]string{
	Pedestrian:      "/frequentzone/pedstrians",
	Elderly:         "/frequentzone/oldman",
	LocalGovernment: "/frequentzone/lg",
	Holiday:         "/frequentzone/tmzon",
}

// Path returns the endpoint path of c, or "" for an unknown category.
func (c Category) Path() string { return categoryPaths[c] }

// Label is the Korean dataset name used in logs.
func (c Category) Label() string {
	switch c {
	case Pedestrian:
		return "보행자 사고다발지역정보"
	case Elderly:
		return "보행노인 사고다발지역정보"
	case LocalGovernment:
		return "지자체별 사고다발지역정보"
	case Holiday:
		return "연휴기간별 사고다발지역정보"
	}
	return string(c)
}

// ParseCategory accepts the category names used in configuration.
func ParseCategory(s string) (Category, bool) {
	c := Category(strings.ToLower(strings.TrimSpace(s)))
	_, ok := categoryPaths[c]
	return c, ok
}

// Query is one region/year request.
type Query struct {
	Year  string
	SiDo  string
	GuGun string
}

// Region is a sido/gugun code pair.
type Region struct {
	SiDo  string
	GuGun string
}

// ParseRegion reads "11:680".
func ParseRegion(s string) (Region, bool) {
	sido, gugun, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok || sido == "" || gugun == "" {
		return Region{}, false
	}
	return Region{SiDo: sido, GuGun: gugun}, true
}

func (r Region) String() string { return r.SiDo + ":" + r.GuGun }

// Page is one page of an API response.
type Page[T any] struct {
	ResultCode string   `json:"resultCode"`
	ResultMsg  string   `json:"resultMsg"`
	TotalCount FlexInt  `json:"totalCount"`
	NumOfRows  FlexInt  `json:"numOfRows"`
	PageNo     FlexInt  `json:"pageNo"`
	Items      Items[T] `json:"items"`
}

// HasNext reports whether rows remain after this page.
func (p *Page[T]) HasNext() bool {
	if p.TotalCount == 0 || p.NumOfRows == 0 || p.PageNo == 0 {
		return false
	}
	return int(p.PageNo)*int(p.NumOfRows) < int(p.TotalCount)
}

// Items decodes both a bare array and the {"item": [...]} wrapper, where a
// single result may arrive as an object instead of an array.
type Items[T any] []T

func (it *Items[T]) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) || bytes.Equal(data, []byte(`""`)) {
		*it = nil
		return nil
	}
	if data[0] == '{' {
		var wrap struct {
			Item json.RawMessage `json:"item"`
		}
		if err := json.Unmarshal(data, &wrap); err != nil {
			return err
		}
		item := bytes.TrimSpace(wrap.Item)
		if len(item) > 0 && item[0] == '{' {
			var one T
			if err := json.Unmarshal(item, &one); err != nil {
				return err
			}
			*it = Items[T]{one}
			return nil
		}
		return it.UnmarshalJSON(item)
	}
	if data[0] != '[' {
		return eris.Errorf("koroad: unexpected items value starting with %q", data[:1])
	}
	var out []T
	if err := json.Unmarshal(data, &out); err != nil {
		return err
	}
	*it = out
	return nil
}

// FlexInt accepts numbers and numeric strings.
type FlexInt int64

func (f *FlexInt) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `" `)
	if s == "" || s == "null" {
		*f = 0
		return nil
	}
	n, err := strconv.ParseFloat(s, 64)
	if err != nil {
		*f = 0
		return nil
	}
	*f = FlexInt(n)
	return nil
}

// FlexFloat accepts numbers and numeric strings. Missing values stay nil.
type FlexFloat struct {
	Value float64
	Valid bool
}

func (f *FlexFloat) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `" `)
	if s == "" || s == "null" {
		*f = FlexFloat{}
		return nil
	}
	n, err := strconv.ParseFloat(s, 64)
	if err != nil {
		*f = FlexFloat{}
		return nil
	}
	*f = FlexFloat{Value: n, Valid: true}
	return nil
}

func (f FlexFloat) MarshalJSON() ([]byte, error) {
	if !f.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(f.Value)
}

// Ptr returns the value or nil.
func (f FlexFloat) Ptr() *float64 {
	if !f.Valid {
		return nil
	}
	v := f.Value
	return &v
}

// FlexString accepts strings and bare numbers.
type FlexString string

func (f *FlexString) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*f = FlexString(s)
		return nil
	}
	if string(data) == "null" {
		*f = ""
		return nil
	}
	*f = FlexString(strings.TrimSpace(string(data)))
	return nil
}

// Hotspot is one accident hotspot.
type Hotspot struct {
	AfosFID    FlexString `json:"afos_fid"`
	AfosID     FlexString `json:"afos_id"`
	BjdCd      FlexString `json:"bjd_cd"`
	SpotCd     FlexString `json:"spot_cd"`
	SidoSggNm  string     `json:"sido_sgg_nm"`
	SpotNm     string     `json:"spot_nm"`
	OccrrncCnt FlexInt    `json:"occrrnc_cnt"`
	CasltCnt   FlexInt    `json:"caslt_cnt"`
	DthDnvCnt  FlexInt    `json:"dth_dnv_cnt"`
	SeDnvCnt   FlexInt    `json:"se_dnv_cnt"`
	SlDnvCnt   FlexInt    `json:"sl_dnv_cnt"`
	WndDnvCnt  FlexInt    `json:"wnd_dnv_cnt"`
	Longitude  FlexFloat  `json:"lo_crd"`
	Latitude   FlexFloat  `json:"la_crd"`
	GeomJSON   string     `json:"geom_json"`
}

// Korean coordinate bounds used to reject misplaced points.
const (
	minLat, maxLat = 33.0, 43.0
	minLng, maxLng = 124.0, 132.0
)

// Valid reports whether h carries an id, names, a positive accident count
// and coordinates inside Korea.
func (h Hotspot) Valid() bool {
	if strings.TrimSpace(string(h.AfosID)) == "" ||
		strings.TrimSpace(h.SidoSggNm) == "" ||
		strings.TrimSpace(h.SpotNm) == "" ||
		h.OccrrncCnt <= 0 {
		return false
	}
	return h.HasCoordinates()
}

// HasCoordinates reports whether both coordinates are present and in Korea.
func (h Hotspot) HasCoordinates() bool {
	if !h.Longitude.Valid || !h.Latitude.Valid {
		return false
	}
	lat, lng := h.Latitude.Value, h.Longitude.Value
	return lat >= minLat && lat <= maxLat && lng >= minLng && lng <= maxLng
}

// LegalDong extracts the dong from a spot name such as
// "서울특별시 동대문구 제기동(용두교 부근)". It is empty when the name has no
// parenthesised landmark.
func LegalDong(spot string) string {
	before, _, ok := strings.Cut(spot, "(")
	if !ok {
		return ""
	}
	words := strings.Fields(before)
	if len(words) == 0 {
		return ""
	}
	return words[len(words)-1]
}

// Statistic is one row of the per-region accident statistics endpoint.
type Statistic struct {
	StdYear       FlexString `json:"std_year"`
	AccClNm       string     `json:"acc_cl_nm"`
	SidoSggNm     string     `json:"sido_sgg_nm"`
	AccCnt        FlexInt    `json:"acc_cnt"`
	AccCntCmrt    FlexFloat  `json:"acc_cnt_cmrt"`
	DthDnvCnt     FlexInt    `json:"dth_dnv_cnt"`
	DthDnvCntCmrt FlexFloat  `json:"dth_dnv_cnt_cmrt"`
	FtltRate      FlexFloat  `json:"ftlt_rate"`
	InjpsnCnt     FlexInt    `json:"injpsn_cnt"`
	InjpsnCntCmrt FlexFloat  `json:"injpsn_cnt_cmrt"`
	TotAccCnt     FlexInt    `json:"tot_acc_cnt"`
	TotDthDnvCnt  FlexInt    `json:"tot_dth_dnv_cnt"`
	TotInjpsnCnt  FlexInt    `json:"tot_injpsn_cnt"`
	Pop100k       FlexFloat  `json:"pop_100k"`
	Car10k        FlexFloat  `json:"car_10k"`
}

// RiskArea is one link-based accident risk area.
type RiskArea struct {
	Name          string    `json:"acc_risk_area_nm"`
	TotAccCnt     FlexInt   `json:"tot_acc_cnt"`
	TotDthDnvCnt  FlexInt   `json:"tot_dth_dnv_cnt"`
	TotSeDnvCnt   FlexInt   `json:"tot_se_dnv_cnt"`
	TotSlDnvCnt   FlexInt   `json:"tot_sl_dnv_cnt"`
	TotWndDnvCnt  FlexInt   `json:"tot_wnd_dnv_cnt"`
	CauseAnalysis string    `json:"cause_anals_ty_nm"`
	CenterX       FlexFloat `json:"cntpnt_utmk_x_crd"`
	CenterY       FlexFloat `json:"cntpnt_utmk_y_crd"`
	GeomWKT       string    `json:"geom_wkt"`
}

// RiskIndex is the danger index of one road link.
type RiskIndex struct {
	Index      FlexInt   `json:"index"`
	LineString string    `json:"line_string"`
	Value      FlexFloat `json:"anals_value"`
	Grade      FlexInt   `json:"anals_grd"`
}
