package migrations

import (
	"encoding/json"

	"github.com/pocketbase/pocketbase/core"
	m "github.com/pocketbase/pocketbase/migrations"
)

func init() {
	m.Register(func(app core.App) error {
		jsonData := `{
			"id": "pbc_waitings0000001",
			"name": "waitings",
			"type": "base",
			"system": false,
			"fields": [
				{
					"type": "text",
					"name": "user_id",
					"required": true,
					"max": 64
				},
				{
					"type": "text",
					"name": "booth_id",
					"required": true,
					"max": 64
				},
				{
					"type": "number",
					"name": "called_position",
					"required": true,
					"onlyInt": true,
					"min": 1
				},
				{
					"type": "date",
					"name": "registered_at",
					"required": true
				},
				{
					"type": "date",
					"name": "called_at",
					"required": true
				},
				{
					"type": "select",
					"name": "status",
					"required": true,
					"maxSelect": 1,
					"values": ["CALLED", "ENTERED", "COMPLETED"]
				},
				{
					"type": "select",
					"name": "completion_type",
					"maxSelect": 1,
					"values": ["ENTERED", "NO_SHOW", "CANCELLED"]
				},
				{
					"type": "date",
					"name": "entered_at"
				},
				{
					"type": "date",
					"name": "completed_at"
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
				"CREATE INDEX idx_waitings_status_called_at ON waitings (status, called_at)",
				"CREATE INDEX idx_waitings_booth_status ON waitings (booth_id, status)",
				"CREATE INDEX idx_waitings_user_status ON waitings (user_id, status)"
			],
			"listRule": null,
			"viewRule": null,
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
		collection, err := app.FindCollectionByNameOrId("pbc_waitings0000001")
		if err != nil {
			return err
		}

		return app.Delete(collection)
	})
}
