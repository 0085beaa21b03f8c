package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"forge/internal/apperr"
	"forge/internal/catalog"
	"forge/internal/pipeline"
)

func quantity(desc string) map[string]any {
	return integer(desc, pipeline.MinQuantity, pipeline.MaxQuantity)
}

func quantityRequired(tool string) error {
	return apperr.New(apperr.KindValidation, tool+": quantity is required unless remove is true")
}

func selectionTools(ws Workspace) []Tool {
	return []Tool{
		&Func{
			name:        "list_adversaries",
			description: "Search the adversary catalog by tier and name. Defaults to the party tier",
			params: object(map[string]any{
				"tier":  integer("adversary tier; 0 lists every tier", 0, 4),
				"query": str("case-insensitive name filter"),
			}),
			run: func(_ context.Context, args json.RawMessage) (string, error) {
				var in struct {
					Tier  *int   `json:"tier"`
					Query string `json:"query"`
				}
				if err := decodeArgs("list_adversaries", args, &in); err != nil {
					return "", err
				}
				tier := int(ws.View().Dials.PartyTier)
				if in.Tier != nil {
					tier = *in.Tier
				}
				return ok(map[string]any{"adversaries": catalog.Adversaries(tier, in.Query)}), nil
			},
		},
		&Func{
			name:        "select_adversary",
			description: "Add a catalog adversary. Selecting one already chosen raises its quantity (capped at 10)",
			params: object(map[string]any{
				"adversaryId": str("catalog id or name"),
				"quantity":    quantity("how many to add"),
			}, "adversaryId"),
			run: func(ctx context.Context, args json.RawMessage) (string, error) {
				var in struct {
					AdversaryID string `json:"adversaryId"`
					Quantity    int    `json:"quantity"`
				}
				if err := decodeArgs("select_adversary", args, &in); err != nil {
					return "", err
				}
				a, found := catalog.FindAdversary(in.AdversaryID)
				if !found {
					return "", apperr.New(apperr.KindValidation, fmt.Sprintf("select_adversary: unknown adversary %q", in.AdversaryID))
				}
				snap, err := changePipeline(ctx, ws, func(st pipeline.State) (pipeline.State, error) {
					return st.SelectAdversary(a.Selection(in.Quantity))
				})
				if err != nil {
					return "", err
				}
				return ok(map[string]any{"adversaries": snap.Adversaries}), nil
			},
		},
		&Func{
			name:        "update_adversary",
			description: "Change the quantity of a selected adversary, or remove it",
			params: object(map[string]any{
				"adversaryId": str("selected adversary id"),
				"quantity":    quantity("new quantity; required unless remove is true"),
				"remove":      boolean("deselect the adversary"),
			}, "adversaryId"),
			run: func(ctx context.Context, args json.RawMessage) (string, error) {
				var in struct {
					AdversaryID string `json:"adversaryId"`
					Quantity    *int   `json:"quantity"`
					Remove      bool   `json:"remove"`
				}
				if err := decodeArgs("update_adversary", args, &in); err != nil {
					return "", err
				}
				if in.Quantity == nil && !in.Remove {
					return "", quantityRequired("update_adversary")
				}
				snap, err := changePipeline(ctx, ws, func(st pipeline.State) (pipeline.State, error) {
					if in.Remove {
						return st.DeselectAdversary(in.AdversaryID), nil
					}
					return st.SetAdversaryQuantity(in.AdversaryID, *in.Quantity)
				})
				if err != nil {
					return "", err
				}
				return ok(map[string]any{"adversaries": snap.Adversaries}), nil
			},
		},
		&Func{
			name:        "confirm_adversary",
			description: "Confirm a selected adversary, every one when all is true, or remove a confirmation with confirmed=false",
			params: object(map[string]any{
				"adversaryId": str("selected adversary id"),
				"all":         boolean("confirm every selected adversary"),
				"confirmed":   boolean("false removes the confirmation; defaults to true"),
			}),
			run: func(ctx context.Context, args json.RawMessage) (string, error) {
				var in confirmArgs
				if err := decodeArgs("confirm_adversary", args, &in); err != nil {
					return "", err
				}
				id := in.ID("adversaryId")
				if err := in.check("confirm_adversary", "adversaryId", id); err != nil {
					return "", err
				}
				snap, err := changePipeline(ctx, ws, func(st pipeline.State) (pipeline.State, error) {
					switch {
					case in.All:
						return st.ConfirmAllAdversaries(), nil
					case in.unconfirm():
						return st.UnconfirmAdversary(id), nil
					default:
						return st.ConfirmAdversary(id)
					}
				})
				if err != nil {
					return "", err
				}
				return ok(map[string]any{"confirmed": snap.ConfirmedAdversaries.Items(), "canProceed": snap.CanProceedToItems()}), nil
			},
		},
		&Func{
			name:        "list_items",
			description: "Search the item catalog by category and name",
			params: object(map[string]any{
				"category": str("consumable, weapon, armor, relic or loot; empty lists all"),
				"query":    str("case-insensitive name filter"),
			}),
			run: func(_ context.Context, args json.RawMessage) (string, error) {
				var in struct {
					Category string `json:"category"`
					Query    string `json:"query"`
				}
				if err := decodeArgs("list_items", args, &in); err != nil {
					return "", err
				}
				return ok(map[string]any{"items": catalog.Items(in.Category, in.Query)}), nil
			},
		},
		&Func{
			name:        "select_item",
			description: "Add a catalog item identified by category and name. Selecting one already chosen raises its quantity (capped at 10)",
			params: object(map[string]any{
				"category": str("item category"),
				"name":     str("item name"),
				"quantity": quantity("how many to add"),
			}, "category", "name"),
			run: func(ctx context.Context, args json.RawMessage) (string, error) {
				var in struct {
					Category string `json:"category"`
					Name     string `json:"name"`
					Quantity int    `json:"quantity"`
				}
				if err := decodeArgs("select_item", args, &in); err != nil {
					return "", err
				}
				it, found := catalog.FindItem(in.Category, in.Name)
				if !found {
					return "", apperr.New(apperr.KindValidation, fmt.Sprintf("select_item: unknown item %s/%s", in.Category, in.Name))
				}
				snap, err := changePipeline(ctx, ws, func(st pipeline.State) (pipeline.State, error) {
					return st.SelectItem(it.Selection(in.Quantity))
				})
				if err != nil {
					return "", err
				}
				return ok(map[string]any{"items": snap.Items}), nil
			},
		},
		&Func{
			name:        "update_item",
			description: "Change the quantity of a selected item, or remove it",
			params: object(map[string]any{
				"category": str("item category"),
				"name":     str("item name"),
				"quantity": quantity("new quantity; required unless remove is true"),
				"remove":   boolean("deselect the item"),
			}, "category", "name"),
			run: func(ctx context.Context, args json.RawMessage) (string, error) {
				var in struct {
					Category string `json:"category"`
					Name     string `json:"name"`
					Quantity *int   `json:"quantity"`
					Remove   bool   `json:"remove"`
				}
				if err := decodeArgs("update_item", args, &in); err != nil {
					return "", err
				}
				if in.Quantity == nil && !in.Remove {
					return "", quantityRequired("update_item")
				}
				key := pipeline.ItemKey(in.Category, in.Name)
				snap, err := changePipeline(ctx, ws, func(st pipeline.State) (pipeline.State, error) {
					if in.Remove {
						return st.DeselectItem(key), nil
					}
					return st.SetItemQuantity(key, *in.Quantity)
				})
				if err != nil {
					return "", err
				}
				return ok(map[string]any{"items": snap.Items}), nil
			},
		},
		&Func{
			name:        "confirm_item",
			description: "Confirm a selected item, every item when all is true, or remove a confirmation with confirmed=false",
			params: object(map[string]any{
				"category":  str("item category"),
				"name":      str("item name"),
				"all":       boolean("confirm every selected item"),
				"confirmed": boolean("false removes the confirmation; defaults to true"),
			}),
			run: func(ctx context.Context, args json.RawMessage) (string, error) {
				var in confirmArgs
				if err := decodeArgs("confirm_item", args, &in); err != nil {
					return "", err
				}
				if err := in.check("confirm_item", "name", in.ID("name")); err != nil {
					return "", err
				}
				key := pipeline.ItemKey(in.ID("category"), in.ID("name"))
				snap, err := changePipeline(ctx, ws, func(st pipeline.State) (pipeline.State, error) {
					switch {
					case in.All:
						return st.ConfirmAllItems(), nil
					case in.unconfirm():
						return st.UnconfirmItem(key), nil
					default:
						return st.ConfirmItem(key)
					}
				})
				if err != nil {
					return "", err
				}
				return ok(map[string]any{"confirmed": snap.ConfirmedItems.Items(), "canProceed": snap.CanProceedToEchoes()}), nil
			},
		},
	}
}
