package main

import (
	takefi "github.com/seigneur/takefi-sub000"
)

func main() {
	if err := takefi.Run(); err != nil {
		panic(err)
	}
}
