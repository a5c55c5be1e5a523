package migrations

import (
	"encoding/json"

	"github.com/pocketbase/pocketbase/core"
	m "github.com/pocketbase/pocketbase/migrations"
)

func init() {
	m.Register(func(app core.App) error {
		jsonData := `{
			"id": "pbc_booths00000001",
			"name": "booths",
			"type": "base",
			"system": false,
			"fields": [
				{
					"type": "text",
					"name": "name",
					"required": true,
					"min": 1,
					"max": 120
				},
				{
					"type": "select",
					"name": "status",
					"required": true,
					"maxSelect": 1,
					"values": ["open", "closed"]
				},
				{
					"type": "number",
					"name": "capacity",
					"required": true,
					"onlyInt": true,
					"min": 1
				},
				{
					"type": "autodate",
					"name": "created",
					"onCreate": true
				},
				{
					"type": "autodate",
					"name": "updated",
					"onCreate": true,
					"onUpdate": true
				}
			],
			"indexes": [
				"CREATE INDEX idx_booths_status ON booths (status)"
			],
			"listRule": "",
			"viewRule": "",
			"createRule": null,
			"updateRule": null,
			"deleteRule": null
		}`

		collection := &core.Collection{}
		if err := json.Unmarshal([]byte(jsonData), &collection); err != nil {
			return err
		}

		return app.Save(collection)
	}, func(app core.App) error {
		collection, err := app.FindCollectionByNameOrId("pbc_booths00000001")
		if err != nil {
			return err
		}

		return app.Delete(collection)
	})
}
