package main

import (
	"fmt"

	"github.com/gorax/flowengine/internal/buildinfo"
)

func main() {
	info := buildinfo.GetInfo()
	fmt.Println(info.String())
}
