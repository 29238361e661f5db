/*
Package config loads and validates bunchimport configuration.

	            +-------------+
	            |   Config    |
	            | (Subjects)  |
	            +------+------+
	                   |
	     +-------------+-------------+
	     |             |             |
	+----+----+   +----+----+   +----+----+
	|  JSON   |   |  YAML   |   |   HCL   |
	| Parser  |   | Parser  |   | Parser  |
	+---------+   +---------+   +---------+

🎯 Purpose:
- Reads the config file, picking a parser by extension
- Fills defaults for every subject and its file resolver
- Applies env and flag overrides through viper

🔄 Flow:
1. LoadConfig reads and parses the file
2. Validate fills defaults and checks naming elements
3. ApplyOverrides layers BUNCHIMPORT_* env vars and CLI flags on top

🔍 Example:

	subject "product" {
	  ok_file_needed = true

	  file_resolver {
	    prefix   = "product-import"
	    filename = "\\d{8}"
	    counter  = "\\d{2}"
	  }

	  column "sku" {
	    handlers = ["trim", "required"]
	  }
	}
*/
package config
