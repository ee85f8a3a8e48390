// Orders CLI — инструмент командной строки для работы с заказами
// через HTTP API.
//
// Использование:
//
//	orders [--api-url URL] [--token TOKEN] [--json] <command> [flags]
//
// Команды:
//
//	register  Регистрация пользователя
//	login     Получение access-токена
//	order     Управление заказами
package main

import (
	"fmt"
	"os"

	"github.com/shaiso/orders/internal/cli"
)

// version задаётся через ldflags при сборке.
var version = "dev"

func main() {
	if err := cli.NewRootCmd(version).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		if cli.IsUnauthorized(err) {
			fmt.Fprintln(os.Stderr, "Hint: run `orders login` and export ORDERS_TOKEN")
		}
		os.Exit(1)
	}
}
