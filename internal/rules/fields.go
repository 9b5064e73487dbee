package rules

import (
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type fieldType int

const (
	typeString fieldType = iota + 1
	typeNumber
	typeList
)

func (t fieldType) String() string {
	switch t {
	case typeString:
		return "string"
	case typeNumber:
		return "number"
	case typeList:
		return "list"
	}
	return "unknown"
}

// accessor resolves a field on an entity. ok is false when the value is
// absent on this particular entity.
type accessor func(e Entity) (value any, ok bool)

type field struct {
	path string
	typ  fieldType
	get  accessor
}

var registry = map[Kind]map[string]field{}

func register(kind Kind, path string, typ fieldType, get accessor) {
	if registry[kind] == nil {
		registry[kind] = make(map[string]field)
	}
	registry[kind][path] = field{path: path, typ: typ, get: get}
}

// lookupField returns the accessor for path on kind.
func lookupField(kind Kind, path string) (field, bool) {
	f, ok := registry[kind][path]
	return f, ok
}

// Fields lists the field paths rules may reference for kind, sorted.
func Fields(kind Kind) []string {
	paths := make([]string, 0, len(registry[kind]))
	for path := range registry[kind] {
		paths = append(paths, path)
	}
	sort.Strings(paths)
	return paths
}

func num(n int64) decimal.Decimal { return decimal.NewFromInt(n) }

// elapsed expresses now-since in unit, truncated to four decimal places.
func elapsed(now, since time.Time, unit time.Duration) decimal.Decimal {
	ms := now.Sub(since).Milliseconds()
	return decimal.NewFromInt(ms).Div(decimal.NewFromInt(unit.Milliseconds())).Truncate(4)
}

func nonEmpty(s string) (any, bool) {
	if s == "" {
		return nil, false
	}
	return s, true
}

func init() {
	registerOrderFields()
	registerProductFields()
	registerCustomerFields()
}

func registerOrderFields() {
	order := func(get func(e Entity) any) accessor {
		return func(e Entity) (any, bool) {
			if e.Order == nil {
				return nil, false
			}
			return get(e), true
		}
	}

	register(KindOrder, "id", typeString, order(func(e Entity) any { return e.Order.ID }))
	register(KindOrder, "status", typeString, order(func(e Entity) any { return string(e.Order.Status) }))
	register(KindOrder, "paymentStatus", typeString, order(func(e Entity) any { return string(e.Order.PaymentStatus) }))
	register(KindOrder, "customerId", typeString, order(func(e Entity) any { return e.Order.CustomerID }))
	register(KindOrder, "total", typeNumber, order(func(e Entity) any { return e.Order.Total() }))
	register(KindOrder, "itemCount", typeNumber, order(func(e Entity) any { return num(int64(len(e.Order.Items))) }))
	register(KindOrder, "itemQuantity", typeNumber, order(func(e Entity) any {
		var qty int64
		for _, item := range e.Order.Items {
			qty += item.Quantity
		}
		return num(qty)
	}))
	register(KindOrder, "productIds", typeList, order(func(e Entity) any {
		ids := make([]string, 0, len(e.Order.Items))
		for _, item := range e.Order.Items {
			ids = append(ids, item.ProductID)
		}
		return ids
	}))
	register(KindOrder, "hoursSinceCreated", typeNumber, order(func(e Entity) any {
		return elapsed(e.Now, e.Order.CreatedAt, time.Hour)
	}))
	register(KindOrder, "hoursSinceUpdated", typeNumber, order(func(e Entity) any {
		return elapsed(e.Now, e.Order.UpdatedAt, time.Hour)
	}))

	// customer.* resolves only when the order carries its customer.
	register(KindOrder, "customer.id", typeString, func(e Entity) (any, bool) {
		if e.Customer == nil {
			return nil, false
		}
		return e.Customer.ID, true
	})
	register(KindOrder, "customer.name", typeString, func(e Entity) (any, bool) {
		if e.Customer == nil {
			return nil, false
		}
		return nonEmpty(e.Customer.Name)
	})
	register(KindOrder, "customer.email", typeString, func(e Entity) (any, bool) {
		if e.Customer == nil {
			return nil, false
		}
		return nonEmpty(e.Customer.Email)
	})
	register(KindOrder, "customer.totalOrders", typeNumber, func(e Entity) (any, bool) {
		if e.Customer == nil {
			return nil, false
		}
		return num(e.Customer.TotalOrders), true
	})
	register(KindOrder, "customer.totalSpent", typeNumber, func(e Entity) (any, bool) {
		if e.Customer == nil {
			return nil, false
		}
		return e.Customer.TotalSpent, true
	})
}

func registerProductFields() {
	product := func(get func(e Entity) any) accessor {
		return func(e Entity) (any, bool) {
			if e.Product == nil {
				return nil, false
			}
			return get(e), true
		}
	}

	register(KindProduct, "id", typeString, product(func(e Entity) any { return e.Product.ID }))
	register(KindProduct, "name", typeString, product(func(e Entity) any { return e.Product.Name }))
	register(KindProduct, "partnerId", typeString, func(e Entity) (any, bool) {
		if e.Product == nil {
			return nil, false
		}
		return nonEmpty(e.Product.PartnerID)
	})
	register(KindProduct, "status", typeString, product(func(e Entity) any { return string(e.Product.Status) }))
	register(KindProduct, "inventoryStatus", typeString, product(func(e Entity) any { return string(e.Product.Derive()) }))
	register(KindProduct, "stock", typeNumber, product(func(e Entity) any { return num(e.Product.Stock) }))
	register(KindProduct, "reservedStock", typeNumber, product(func(e Entity) any { return num(e.Product.ReservedStock) }))
	register(KindProduct, "availableStock", typeNumber, product(func(e Entity) any { return num(e.Product.Available()) }))
	register(KindProduct, "minStock", typeNumber, product(func(e Entity) any { return num(e.Product.MinStock) }))
	register(KindProduct, "maxStock", typeNumber, product(func(e Entity) any { return num(e.Product.MaxStock) }))
	register(KindProduct, "hoursSinceUpdated", typeNumber, product(func(e Entity) any {
		return elapsed(e.Now, e.Product.UpdatedAt, time.Hour)
	}))
}

func registerCustomerFields() {
	customer := func(get func(e Entity) any) accessor {
		return func(e Entity) (any, bool) {
			if e.Customer == nil {
				return nil, false
			}
			return get(e), true
		}
	}

	register(KindCustomer, "id", typeString, customer(func(e Entity) any { return e.Customer.ID }))
	register(KindCustomer, "name", typeString, func(e Entity) (any, bool) {
		if e.Customer == nil {
			return nil, false
		}
		return nonEmpty(e.Customer.Name)
	})
	register(KindCustomer, "email", typeString, func(e Entity) (any, bool) {
		if e.Customer == nil {
			return nil, false
		}
		return nonEmpty(e.Customer.Email)
	})
	register(KindCustomer, "totalOrders", typeNumber, customer(func(e Entity) any { return num(e.Customer.TotalOrders) }))
	register(KindCustomer, "totalSpent", typeNumber, customer(func(e Entity) any { return e.Customer.TotalSpent }))
	register(KindCustomer, "daysSinceSignup", typeNumber, customer(func(e Entity) any {
		return elapsed(e.Now, e.Customer.CreatedAt, 24*time.Hour)
	}))
	register(KindCustomer, "daysSinceLastOrder", typeNumber, func(e Entity) (any, bool) {
		if e.Customer == nil || e.Customer.LastOrderAt == nil {
			return nil, false
		}
		return elapsed(e.Now, *e.Customer.LastOrderAt, 24*time.Hour), true
	})
}

// celInput builds the nested map a CEL guard sees as `entity`. Absent
// fields are left out so guards can test them with has().
func celInput(e Entity) map[string]any {
	root := map[string]any{}
	for path, f := range registry[e.Kind] {
		v, ok := f.get(e)
		if !ok {
			continue
		}
		if d, isDec := v.(decimal.Decimal); isDec {
			v = d.InexactFloat64()
		}

		node := root
		parts := strings.Split(path, ".")
		for _, part := range parts[:len(parts)-1] {
			child, ok := node[part].(map[string]any)
			if !ok {
				child = map[string]any{}
				node[part] = child
			}
			node = child
		}
		node[parts[len(parts)-1]] = v
	}
	return root
}
