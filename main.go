// Command geoscraper scrapes the worldwide country and city directory and
// serves the collected data.
package main

import "github.com/weathertrack/geoscraper/cmd"

func main() {
	cmd.Execute()
}
