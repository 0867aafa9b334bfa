package demo

import (
	"github.com/appetiteclub/comanda/internal/backend"
	"github.com/appetiteclub/comanda/pkg/enums/orderstatus"
	"github.com/appetiteclub/comanda/pkg/enums/role"
	"github.com/shopspring/decimal"
)

// DemoPassword is the password of every seeded account.
const DemoPassword = "demo"

type productSeed struct {
	id       string
	name     string
	category string
	price    string
	stock    int
}

var seedProducts = []productSeed{
	{id: "p-bravas", name: "Patatas bravas", category: "tapas", price: "5.50", stock: 40},
	{id: "p-croquetas", name: "Croquetas de jamón", category: "tapas", price: "7.00", stock: 24},
	{id: "p-pulpo", name: "Pulpo a la gallega", category: "raciones", price: "16.50", stock: 6},
	{id: "p-tortilla", name: "Tortilla de patatas", category: "raciones", price: "9.00", stock: 3},
	{id: "p-paella", name: "Paella mixta", category: "principales", price: "14.00", stock: 12},
	{id: "p-flan", name: "Flan casero", category: "postres", price: "4.50", stock: 10},
	{id: "p-cana", name: "Caña", category: "bebidas", price: "2.20", stock: 200},
	{id: "p-agua", name: "Agua mineral", category: "bebidas", price: "1.80", stock: 0},
}

var seedTables = []struct {
	id     string
	number string
	seats  int
}{
	{id: "t-1", number: "1", seats: 2},
	{id: "t-2", number: "2", seats: 4},
	{id: "t-3", number: "3", seats: 4},
	{id: "t-4", number: "4", seats: 6},
	{id: "t-5", number: "5", seats: 2},
	{id: "t-terraza-1", number: "Terraza 1", seats: 4},
	{id: "t-barra-2", number: "Barra 2", seats: 1},
}

var seedAccounts = []backend.User{
	{ID: "u-ana", Name: "Ana", Username: "ana", Role: role.Roles.Waiter.Code()},
	{ID: "u-luis", Name: "Luis", Username: "luis", Role: role.Roles.Waiter.Code()},
	{ID: "u-carla", Name: "Carla", Username: "carla", Role: role.Roles.Cashier.Code()},
	{ID: "u-chef", Name: "Chef", Username: "chef", Role: role.Roles.Kitchen.Code()},
	{ID: "u-marta", Name: "Marta", Username: "marta", Role: role.Roles.Manager.Code()},
	{ID: "u-admin", Name: "Admin", Username: "admin", Role: role.Roles.Admin.Code()},
}

func (s *Store) seed() {
	for _, u := range seedAccounts {
		s.accounts[u.Username] = account{password: DemoPassword, user: u}
	}

	for _, t := range seedTables {
		s.tables = append(s.tables, &backend.Table{
			ID:     t.id,
			Number: t.number,
			Status: "available",
			Seats:  t.seats,
		})
	}

	for _, p := range seedProducts {
		s.products = append(s.products, &backend.Product{
			ID:       p.id,
			Name:     p.name,
			Category: p.category,
			Price:    decimal.RequireFromString(p.price),
			Stock:    p.stock,
			Status:   stockStatus(p.stock),
		})
	}

	// One settled order so supervisors have something in the archive.
	archived := s.newOrderLocked(nil, seedAccounts[0])
	archived.Items = append(archived.Items, backend.LineItem{
		ID:          "seed-item-1",
		OrderID:     archived.ID,
		ProductID:   "p-cana",
		ProductName: "Caña",
		Quantity:    2,
		UnitPrice:   decimal.RequireFromString("2.20"),
		CreatedAt:   archived.CreatedAt,
	})
	archived.Total = orderTotal(archived.Items)
	archived.Status = orderstatus.Statuses.Completed.Code()
	s.itemOrder["seed-item-1"] = archived.ID
}
