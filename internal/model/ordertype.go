package model

import (
	"sort"
	"strconv"
	"strings"
)

// OrderTypeParams describes one order_type_code: its vehicle class, the
// subcategory, a display name, and the capability tags a vehicle must
// advertise to be eligible. Grounded on OrderEnums.h's createOrderTypeEnum.
type OrderTypeParams struct {
	VehicleClass string
	Subcategory  string
	DisplayName  string
	Capabilities []string
}

// OrderTypeCodes, in the original's fixed order.
const (
	OrderTypeDailyGoods  = 101
	OrderTypeFood        = 102
	OrderTypeMedicine    = 201
	OrderTypeDelivery    = 301
	OrderTypeElectronics = 401
	OrderTypeFrozenFood  = 501
	OrderTypeDocuments   = 601
	OrderTypeFlowers     = 701
	OrderTypeClothing    = 801
	OrderTypeBooks       = 901
)

// OrderTypeTable is the fixed order_type_code -> params table. Its keys are
// the codes carried as the bus "type" header on publish; the producers draw
// order types and capability tags from it. The store does not check an
// order's type against it on write.
var OrderTypeTable = map[int]OrderTypeParams{
	OrderTypeDailyGoods:  {"四轮车", "日常百货", "百货配送车", []string{"保温箱"}},
	OrderTypeFood:        {"四轮车", "餐饮", "餐饮配送车", []string{"保温箱"}},
	OrderTypeMedicine:    {"无人机", "医药", "医药无人机", []string{"防震", "夜视"}},
	OrderTypeDelivery:    {"四轮车", "快递", "快递车", []string{"防震"}},
	OrderTypeElectronics: {"机器人", "电子产品", "电子配送机器人", []string{"防震", "防水"}},
	OrderTypeFrozenFood:  {"四轮车", "冷藏", "冷藏车", []string{"保温箱", "防水"}},
	OrderTypeDocuments:   {"无人机", "文件", "文件无人机", []string{"防震"}},
	OrderTypeFlowers:     {"四轮车", "鲜花", "鲜花配送车", []string{"保温箱"}},
	OrderTypeClothing:    {"机器人", "服装", "服装配送机器人", []string{"防震"}},
	OrderTypeBooks:       {"四轮车", "图书", "图书配送车", []string{"防震"}},
}

// CodesByVehicleClass returns every order_type_code whose VehicleClass
// matches class, in ascending order. Grounded on
// OrderTypeEnum.getCodesByParamValue(0, class) from createRandomUVehicle.h.
func CodesByVehicleClass(class string) []int {
	var codes []int
	for code, p := range OrderTypeTable {
		if p.VehicleClass == class {
			codes = append(codes, code)
		}
	}
	sort.Ints(codes)
	return codes
}

// CapabilitiesForTypes returns the de-duplicated union of capability tags
// required across a comma-joined list of order_type_codes, as assembled
// into UVehicle.Capabilities by createRandomUVehicle.h.
func CapabilitiesForTypes(supportedTypesCSV string) []string {
	seen := make(map[string]struct{})
	var caps []string
	for _, part := range strings.Split(supportedTypesCSV, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		code, err := strconv.Atoi(part)
		if err != nil {
			continue
		}
		params, ok := OrderTypeTable[code]
		if !ok {
			continue
		}
		for _, c := range params.Capabilities {
			if _, dup := seen[c]; dup {
				continue
			}
			seen[c] = struct{}{}
			caps = append(caps, c)
		}
	}
	return caps
}
