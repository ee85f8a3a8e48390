package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
)

// NewOrderCmd создаёт группу команд для управления заказами.
func NewOrderCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "order",
		Short: "Manage orders",
	}

	cmd.AddCommand(
		newOrderCreateCmd(clientFn, outputFn),
		newOrderGetCmd(clientFn, outputFn),
		newOrderUpdateCmd(clientFn, outputFn),
		newOrderListCmd(clientFn, outputFn),
	)

	return cmd
}

func newOrderCreateCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var items []string
	var total string

	cmd := &cobra.Command{
		Use:     "create",
		Short:   "Create an order",
		Example: "  orders order create --item laptop=1 --item mouse=2 --total 1019.98",
		RunE: func(cmd *cobra.Command, args []string) error {
			parsed, err := parseItems(items)
			if err != nil {
				return err
			}

			out := outputFn()
			created, err := clientFn().CreateOrder(CreateOrderRequest{
				Items:      parsed,
				TotalPrice: json.Number(total),
			})
			var apiErr *APIError
			if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusServiceUnavailable && apiErr.OrderID != "" {
				out.Error(fmt.Sprintf("order %s saved but not queued for processing", apiErr.OrderID))
				return err
			}
			if err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Order created: %s", created.OrderID))
			out.Print([]string{"ORDER_ID", "STATUS"}, [][]string{{created.OrderID, created.Status}}, created)
			return nil
		},
	}

	cmd.Flags().StringArrayVar(&items, "item", nil, "Item as name=quantity, repeatable (required)")
	cmd.Flags().StringVar(&total, "total", "", "Total price, e.g. 999.99 (required)")
	cmd.MarkFlagRequired("item")
	cmd.MarkFlagRequired("total")

	return cmd
}

func newOrderGetCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "get ID",
		Short: "Show an order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			order, err := clientFn().GetOrder(args[0])
			if err != nil {
				return err
			}

			outputFn().Print(orderHeaders, [][]string{orderRow(*order)}, order)
			return nil
		},
	}
}

func newOrderUpdateCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var status string

	cmd := &cobra.Command{
		Use:   "update ID",
		Short: "Change order status",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			order, err := clientFn().UpdateOrderStatus(args[0], strings.ToUpper(status))
			if err != nil {
				return err
			}

			out := outputFn()
			out.Success(fmt.Sprintf("Order %s is now %s", order.ID, order.Status))
			out.Print(orderHeaders, [][]string{orderRow(*order)}, order)
			return nil
		},
	}

	cmd.Flags().StringVar(&status, "status", "", "New status: PENDING, PAID, SHIPPED, CANCELLED (required)")
	cmd.MarkFlagRequired("status")

	return cmd
}

func newOrderListCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List your orders, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			orders, err := clientFn().ListOrders()
			if err != nil {
				return err
			}

			rows := make([][]string, len(orders))
			for i, o := range orders {
				rows[i] = orderRow(o)
			}
			outputFn().Print(orderHeaders, rows, orders)
			return nil
		},
	}
}

// parseItems: "laptop=1" → {"laptop": 1}. Одна позиция на флаг.
func parseItems(raw []string) ([]map[string]int, error) {
	items := make([]map[string]int, 0, len(raw))
	for _, s := range raw {
		name, qty, ok := strings.Cut(s, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid item %q: want name=quantity", s)
		}
		n, err := strconv.Atoi(strings.TrimSpace(qty))
		if err != nil || n < 1 {
			return nil, fmt.Errorf("invalid quantity in %q: want integer >= 1", s)
		}
		items = append(items, map[string]int{name: n})
	}
	return items, nil
}
